package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pastes is the paste lifecycle the server exposes.
type Pastes interface {
	Create(ctx context.Context, content []byte) (string, error)
	Fetch(ctx context.Context, key string) (string, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config captures server configuration.
type Config struct {
	Pastes     Pastes
	Health     Pinger
	Gatherer   prometheus.Gatherer
	TrustProxy bool
	BaseURL    string
	Logger     *slog.Logger
}

// Server wraps HTTP handling logic.
type Server struct {
	pastes     Pastes
	health     Pinger
	gatherer   prometheus.Gatherer
	router     chi.Router
	trustProxy bool
	baseURL    *url.URL
	logger     *slog.Logger
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Pastes == nil {
		return nil, errors.New("paste store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		var err error
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		pastes:     cfg.Pastes,
		health:     cfg.Health,
		gatherer:   cfg.Gatherer,
		router:     chi.NewRouter(),
		trustProxy: cfg.TrustProxy,
		baseURL:    parsedBase,
		logger:     cfg.Logger,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))

	r.Post("/paste", s.handleCreate)
	r.Get("/paste/{key}", s.handleFetch)
	r.Get("/qr/{key}", s.handleQR)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if s.baseURL != nil && s.baseURL.Scheme == "https" {
		return true
	}
	if s.trustProxy {
		proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		if proto == "https" {
			return true
		}
	}
	return false
}

// fetchURL is the absolute URL a client GETs to read the paste under key.
func (s *Server) fetchURL(r *http.Request, key string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/paste/" + key
		return u.String()
	}

	scheme := "http"
	if s.isSecureRequest(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s/paste/%s", scheme, host, key)
}
