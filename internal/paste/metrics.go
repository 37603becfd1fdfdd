package paste

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

var _ prometheus.Collector = (*metrics)(nil)

func newMetrics() *metrics {
	var m metrics

	m.opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oncepaste_operations_total",
		Help: "Total number of paste operations. result will be one of: ok, not_found, store_error, connection_timeout, or decode_error.",
	}, []string{"op", "result"})
	m.opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oncepaste_operation_duration_seconds",
		Help:    "Histogram of the latency of paste operations against the backing store",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	return &m
}

func (m *metrics) observe(op string, err error, seconds float64) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.opsTotal.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(seconds)
}

func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.opsTotal.Describe(ch)
	m.opDuration.Describe(ch)
}

func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.opsTotal.Collect(ch)
	m.opDuration.Collect(ch)
}
