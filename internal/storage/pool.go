package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize and DefaultPoolTimeout are shared by every engine. The
// timeout stays below the networked engine's command timeout.
const (
	DefaultPoolSize    = 10
	DefaultPoolTimeout = 2 * time.Second
)

// Limit bounds the number of in-flight calls against engine to size. A call
// waits at most timeout for a free slot and fails with ErrPoolTimeout
// otherwise. Ping and Close are not limited.
func Limit(engine Engine, size int, timeout time.Duration) Engine {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultPoolTimeout
	}
	return &limitedEngine{
		Engine:  engine,
		sem:     semaphore.NewWeighted(int64(size)),
		timeout: timeout,
	}
}

type limitedEngine struct {
	Engine
	sem     *semaphore.Weighted
	timeout time.Duration
}

func (l *limitedEngine) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return l.Engine.SetEx(ctx, key, value, ttl)
}

func (l *limitedEngine) GetDel(ctx context.Context, key string) ([]byte, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.Engine.GetDel(ctx, key)
}

// DeleteExpired forwards to the wrapped engine when it is a Sweeper.
func (l *limitedEngine) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	sw, ok := l.Engine.(Sweeper)
	if !ok {
		return 0, nil
	}
	release, err := l.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return sw.DeleteExpired(ctx, before)
}

func (l *limitedEngine) acquire(ctx context.Context) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		// The caller's own cancellation is not a pool timeout.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrPoolTimeout
		}
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}
