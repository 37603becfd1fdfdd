package storage

import (
	"context"
	"log/slog"
	"time"
)

// Janitor reclaims expired records from engines that cannot expire them on
// their own. Reads already treat expired records as absent, so a missed
// sweep only costs disk space.
type Janitor struct {
	// Backend names the swept engine in log lines.
	Backend  string
	Sweeper  Sweeper
	Interval time.Duration
	Logger   *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// StartJanitor sweeps sweeper once right away, which reclaims records left
// behind by a previous process, and then every interval until ctx is done.
func StartJanitor(ctx context.Context, backend string, sweeper Sweeper, interval time.Duration, logger *slog.Logger) {
	if sweeper == nil {
		return
	}
	j := &Janitor{Backend: backend, Sweeper: sweeper, Interval: interval, Logger: logger}
	go j.Run(ctx)
}

// Run blocks until ctx is done and returns the number of records removed.
func (j *Janitor) Run(ctx context.Context) int {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	total := j.sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger().Debug("janitor stopped", "backend", j.Backend, "removed_total", total)
			return total
		case <-ticker.C:
			total += j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) int {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	// A sweep never outlives the interval that scheduled it.
	timeout := j.Interval
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := now()
	removed, err := j.Sweeper.DeleteExpired(c, start)
	if err != nil {
		if ctx.Err() == nil {
			j.logger().Error("janitor sweep failed", "backend", j.Backend, "error", err)
		}
		return 0
	}
	if removed > 0 {
		j.logger().Info("janitor removed expired pastes",
			"backend", j.Backend,
			"count", removed,
			"took", time.Since(start))
	}
	return removed
}

func (j *Janitor) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
