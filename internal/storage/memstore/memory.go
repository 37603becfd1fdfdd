// Package memstore is a process-local storage.Engine. It backs tests and
// single-process development runs where no Redis server is available.
package memstore

import (
	"context"
	"sync"
	"time"

	"oncepaste/internal/storage"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store keeps values in a map guarded by a mutex.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{entries: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]byte{}, value...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, storage.ErrNil
	}
	delete(s.entries, key)
	if !s.now().Before(e.expiresAt) {
		return nil, storage.ErrNil
	}
	return e.value, nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if !e.expiresAt.After(before) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }
