// Package paste implements the lifecycle of one-time pastes: a paste is
// written under a freshly generated key with a fixed time-to-live, and the
// first fetch of that key returns it and removes it from the store.
//
// The Store issues exactly one engine call per operation and never retries.
// Exactly-once delivery relies on the engine's atomic get-and-delete; the
// Store holds no locks of its own.
package paste

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"oncepaste/internal/id"
	"oncepaste/internal/storage"
)

const (
	// DefaultTTL is how long an unread paste is kept.
	DefaultTTL = 30 * time.Minute
	// DefaultNamespace is prepended to every key sent to the engine.
	DefaultNamespace = "pasta"
)

// Store creates and consumes pastes on top of a storage.Engine.
type Store struct {
	engine    storage.Engine
	idGen     *id.Generator
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
	m         *metrics
}

// Option configures a Store.
type Option func(*Store)

// WithGenerator sets the key generator.
func WithGenerator(g *id.Generator) Option {
	return func(s *Store) { s.idGen = g }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(s *Store) { s.namespace = ns }
}

// WithLogger sets the logger used for server-side error detail.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store backed by engine.
func New(engine storage.Engine, opts ...Option) *Store {
	s := &Store{
		engine:    engine,
		ttl:       DefaultTTL,
		namespace: DefaultNamespace,
		m:         newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idGen == nil {
		s.idGen = id.New()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Metrics returns the collector for the Store's operation metrics.
func (s *Store) Metrics() prometheus.Collector { return s.m }

// Create stores content under a new key and returns the key. No existence
// check is made, so a key collision overwrites the earlier paste.
func (s *Store) Create(ctx context.Context, content []byte) (key string, err error) {
	start := time.Now()
	defer func() { s.m.observe("create", err, time.Since(start).Seconds()) }()

	key = s.idGen.Generate()
	if err := s.engine.SetEx(ctx, s.storageKey(key), content, s.ttl); err != nil {
		return "", s.wrap("create", err, key)
	}
	s.logger.Debug("paste created", "size", len(content))
	return key, nil
}

// Fetch returns the content stored under key and removes it. A paste that
// does not exist, was already fetched, or has expired yields KindNotFound.
func (s *Store) Fetch(ctx context.Context, key string) (content string, err error) {
	start := time.Now()
	defer func() { s.m.observe("fetch", err, time.Since(start).Seconds()) }()

	raw, err := s.engine.GetDel(ctx, s.storageKey(key))
	if err != nil {
		return "", s.wrap("fetch", err, key)
	}
	// The value is gone from the store at this point even if it cannot be decoded.
	if !utf8.Valid(raw) {
		s.logger.Warn("fetched paste is not valid utf-8", "size", len(raw))
		return "", &Error{Kind: KindDecode, Err: errors.New("invalid utf-8 sequence")}
	}
	s.logger.Debug("paste fetched", "size", len(raw))
	return string(raw), nil
}

func (s *Store) storageKey(key string) string {
	return s.namespace + ":" + key
}

// wrap classifies an engine error. Keys are never logged: holding one is
// enough to consume the paste.
func (s *Store) wrap(op string, err error, key string) error {
	var e *Error
	switch {
	case errors.Is(err, storage.ErrNil):
		return &Error{Kind: KindNotFound, Key: key}
	case errors.Is(err, storage.ErrPoolTimeout):
		e = &Error{Kind: KindConnectionTimeout, Err: err}
	default:
		e = &Error{Kind: KindStore, Err: err}
	}
	s.logger.Error("engine call failed", "op", op, "kind", e.Kind.String(), "error", err)
	return e
}
