package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNil is returned by GetDel when the key does not exist or has expired.
	ErrNil = errors.New("storage: key does not exist")
	// ErrPoolTimeout is returned when no pooled connection became available in time.
	ErrPoolTimeout = errors.New("storage: connection pool timeout")
)

// Engine is the key-value backend pastes are written to. Implementations must
// make GetDel atomic: for a given key at most one concurrent caller observes
// the value.
type Engine interface {
	// SetEx stores value under key, replacing any previous value, and expires it after ttl.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// GetDel returns the value stored under key and removes it.
	GetDel(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by engines that reclaim expired keys themselves.
type Sweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
