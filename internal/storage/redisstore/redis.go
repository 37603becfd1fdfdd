package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"oncepaste/internal/storage"
)

// DefaultURL is used when Options.URL is empty.
const DefaultURL = "redis://localhost:6379"

// defaultCommandTimeout is the go-redis read timeout used when none is configured.
const defaultCommandTimeout = 3 * time.Second

// Options configures the connection pool.
type Options struct {
	URL      string
	PoolSize int
	// PoolTimeout defaults to storage.DefaultPoolTimeout.
	PoolTimeout time.Duration
	// ReadTimeout bounds a single command round trip. Zero keeps the client
	// default. It is raised above PoolTimeout when it would not exceed it.
	ReadTimeout time.Duration
}

// Store implements storage.Engine on top of a pooled Redis client.
type Store struct {
	rdb *redis.Client
}

// Open connects to the Redis server described by opts and verifies it responds.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// New builds a Store without contacting the server.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Every failure surfaces to the caller on the first attempt.
	ro.MaxRetries = -1
	if opts.PoolSize > 0 {
		ro.PoolSize = opts.PoolSize
	}
	switch {
	case opts.PoolTimeout > 0:
		ro.PoolTimeout = opts.PoolTimeout
	case ro.PoolTimeout <= 0:
		ro.PoolTimeout = storage.DefaultPoolTimeout
	}
	if opts.ReadTimeout != 0 {
		ro.ReadTimeout = opts.ReadTimeout
	}
	boundCommands(ro)
	return &Store{rdb: redis.NewClient(ro)}, nil
}

// boundCommands keeps command deadlines longer than the pool wait. A stalled
// server must leave waiters failing on the pool, not on a connection that a
// timed-out holder has just released.
func boundCommands(ro *redis.Options) {
	read := ro.ReadTimeout
	if read == 0 {
		read = defaultCommandTimeout
	}
	if read > 0 && read <= ro.PoolTimeout {
		ro.ReadTimeout = 2 * ro.PoolTimeout
	}
	if ro.WriteTimeout > 0 && ro.WriteTimeout <= ro.PoolTimeout {
		ro.WriteTimeout = 2 * ro.PoolTimeout
	}
}

// SetEx stores value under key with an expiry of ttl.
func (s *Store) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set: %w", translate(err))
	}
	return nil
}

// GetDel atomically reads and removes key.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNil
	}
	if err != nil {
		return nil, fmt.Errorf("getdel: %w", translate(err))
	}
	return val, nil
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", translate(err))
	}
	return nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func translate(err error) error {
	if errors.Is(err, redis.ErrPoolTimeout) {
		return storage.ErrPoolTimeout
	}
	return err
}
