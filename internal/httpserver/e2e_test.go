package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"oncepaste/internal/paste"
	"oncepaste/internal/storage/redisstore"
)

func TestEndToEndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	engine, err := redisstore.Open(context.Background(), redisstore.Options{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := New(Config{
		Pastes: paste.New(engine),
		Health: engine,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(ts.URL+"/paste", "text/plain", strings.NewReader("hello world"))
	require.NoError(t, err)
	keyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	key := string(keyBytes)
	require.Len(t, key, 8)
	require.Equal(t, 30*time.Minute, mr.TTL("pasta:"+key))

	// many readers race for the same paste; exactly one wins
	const readers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
		bodies   []string
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(ts.URL + "/paste/" + key)
			if err != nil {
				t.Error(err)
				return
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			mu.Lock()
			defer mu.Unlock()
			statuses[resp.StatusCode]++
			if resp.StatusCode == http.StatusOK {
				bodies = append(bodies, string(body))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, statuses[http.StatusOK])
	require.Equal(t, readers-1, statuses[http.StatusNotFound])
	require.Equal(t, []string{"hello world"}, bodies)
}

func TestEndToEndRedisExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	engine, err := redisstore.Open(context.Background(), redisstore.Options{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := New(Config{Pastes: paste.New(engine), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/paste", strings.NewReader("gone soon"))
	require.Equal(t, http.StatusOK, rec.Code)
	key := rec.Body.String()

	mr.FastForward(paste.DefaultTTL + time.Second)

	rec = do(t, h, http.MethodGet, "/paste/"+key, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not found: "+key, rec.Body.String())
}
