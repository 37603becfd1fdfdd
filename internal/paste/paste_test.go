package paste

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"oncepaste/internal/id"
	"oncepaste/internal/storage"
	"oncepaste/internal/storage/memstore"
)

// failingEngine returns err from every call.
type failingEngine struct {
	err error
}

func (f failingEngine) SetEx(context.Context, string, []byte, time.Duration) error { return f.err }
func (f failingEngine) GetDel(context.Context, string) ([]byte, error)             { return nil, f.err }
func (f failingEngine) Ping(context.Context) error                                 { return f.err }
func (f failingEngine) Close() error                                               { return nil }

func TestRoundTrip(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	for _, content := range []string{"hello world", "", "line1\nline2\r\n", "ünïcødé ✓", string(bytes.Repeat([]byte("x"), 1<<20))} {
		key, err := s.Create(ctx, []byte(content))
		require.NoError(t, err)
		require.True(t, id.Valid(key), "key %q", key)

		got, err := s.Fetch(ctx, key)
		require.NoError(t, err)
		require.Equal(t, content, got)
	}
}

func TestExactlyOnce(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	key, err := s.Create(ctx, []byte("hello world"))
	require.NoError(t, err)
	require.Len(t, key, 8)

	got, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "hello world", got)

	for i := 0; i < 3; i++ {
		_, err = s.Fetch(ctx, key)
		require.True(t, IsNotFound(err))
		require.EqualError(t, err, "not found: "+key)
	}
}

func TestUnknownKey(t *testing.T) {
	s := New(memstore.New())
	_, err := s.Fetch(context.Background(), "nope1234")

	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, KindNotFound, pe.Kind)
	require.Equal(t, "nope1234", pe.Key)
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	engine := memstore.New(memstore.WithClock(func() time.Time { return now }))
	s := New(engine, WithTTL(time.Second))
	ctx := context.Background()

	key, err := s.Create(ctx, []byte("short lived"))
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Fetch(ctx, key)
	require.True(t, IsNotFound(err))
}

func TestNamespacedKeys(t *testing.T) {
	engine := memstore.New()
	s := New(engine, WithGenerator(id.New(id.WithSource(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7})))))
	ctx := context.Background()

	key, err := s.Create(ctx, []byte("v"))
	require.NoError(t, err)
	require.Equal(t, "abcdefgh", key)

	raw, err := engine.GetDel(ctx, "pasta:abcdefgh")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), raw)
}

func TestCollisionOverwrites(t *testing.T) {
	fixed := bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7}, 2)
	s := New(memstore.New(), WithGenerator(id.New(id.WithSource(bytes.NewReader(fixed)))))
	ctx := context.Background()

	k1, err := s.Create(ctx, []byte("first"))
	require.NoError(t, err)
	k2, err := s.Create(ctx, []byte("second"))
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	got, err := s.Fetch(ctx, k1)
	require.NoError(t, err)
	require.Equal(t, "second", got)
}

func TestConcurrentFetchRace(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	key, err := s.Create(ctx, []byte("only once"))
	require.NoError(t, err)

	const n = 64
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := s.Fetch(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && got == "only once":
				wins++
			case IsNotFound(err):
				notFound++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, n-1, notFound)
}

func TestDecodeError(t *testing.T) {
	engine := memstore.New()
	s := New(engine)
	ctx := context.Background()

	require.NoError(t, engine.SetEx(ctx, "pasta:badbytes", []byte{0xff, 0xfe, 0xfd}, time.Minute))

	_, err := s.Fetch(ctx, "badbytes")
	require.Equal(t, KindDecode, KindOf(err))

	// the value was consumed regardless
	_, err = s.Fetch(ctx, "badbytes")
	require.True(t, IsNotFound(err))
}

func TestEngineErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("store error", func(t *testing.T) {
		boom := errors.New("ERR wrong number of arguments")
		s := New(failingEngine{err: boom})

		_, err := s.Create(ctx, []byte("x"))
		require.Equal(t, KindStore, KindOf(err))
		require.ErrorIs(t, err, boom)

		_, err = s.Fetch(ctx, "abcdefgh")
		require.Equal(t, KindStore, KindOf(err))
	})

	t.Run("connection timeout", func(t *testing.T) {
		s := New(failingEngine{err: errors.Join(errors.New("getdel pasta:x"), storage.ErrPoolTimeout)})

		_, err := s.Create(ctx, []byte("x"))
		require.Equal(t, KindConnectionTimeout, KindOf(err))
		require.EqualError(t, err, "connection timeout")

		_, err = s.Fetch(ctx, "abcdefgh")
		require.Equal(t, KindConnectionTimeout, KindOf(err))
	})
}

func TestLogsOmitKeys(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := New(memstore.New(), WithLogger(logger))
	key, err := s.Create(ctx, []byte("hello world"))
	require.NoError(t, err)
	_, err = s.Fetch(ctx, key)
	require.NoError(t, err)
	_, err = s.Fetch(ctx, key)
	require.True(t, IsNotFound(err))
	require.Contains(t, buf.String(), "paste created")
	require.NotContains(t, buf.String(), key)
	require.NotContains(t, buf.String(), "engine call failed")

	buf.Reset()
	s = New(failingEngine{err: errors.New("READONLY replica")}, WithLogger(logger))
	_, err = s.Fetch(ctx, "abcdefgh")
	require.Equal(t, KindStore, KindOf(err))
	require.Contains(t, buf.String(), "engine call failed")
	require.Contains(t, buf.String(), "kind=store_error")
	require.Contains(t, buf.String(), "READONLY replica")
	require.NotContains(t, buf.String(), "abcdefgh")
}

func TestPoolExhaustion(t *testing.T) {
	release := make(chan struct{})
	engine := storage.Limit(stalled{release: release}, 2, 50*time.Millisecond)
	s := New(engine)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := s.Create(context.Background(), []byte("x"))
			errs <- err
		}()
	}

	select {
	case err := <-errs:
		require.Equal(t, KindConnectionTimeout, KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("create hung on an exhausted pool")
	}
	close(release)
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}
}

type stalled struct {
	release chan struct{}
}

func (s stalled) SetEx(context.Context, string, []byte, time.Duration) error {
	<-s.release
	return nil
}

func (s stalled) GetDel(context.Context, string) ([]byte, error) {
	<-s.release
	return nil, storage.ErrNil
}

func (s stalled) Ping(context.Context) error { return nil }
func (s stalled) Close() error               { return nil }

func TestMetrics(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(s.Metrics()))

	key, err := s.Create(ctx, []byte("m"))
	require.NoError(t, err)
	_, err = s.Fetch(ctx, key)
	require.NoError(t, err)
	_, err = s.Fetch(ctx, key)
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(s.m.opsTotal.WithLabelValues("create", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(s.m.opsTotal.WithLabelValues("fetch", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(s.m.opsTotal.WithLabelValues("fetch", "not_found")))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "not_found", KindNotFound.String())
	require.Equal(t, "store_error", KindStore.String())
	require.Equal(t, "connection_timeout", KindConnectionTimeout.String())
	require.Equal(t, "decode_error", KindDecode.String())
	require.Equal(t, "unknown", Kind(0).String())
	require.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
