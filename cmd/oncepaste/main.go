package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"oncepaste/internal/httpserver"
	"oncepaste/internal/paste"
	"oncepaste/internal/storage"
	"oncepaste/internal/storage/memstore"
	"oncepaste/internal/storage/redisstore"
)

const (
	backendRedis    = "redis"
	backendEmbedded = "embedded"
	backendMemory   = "memory"
)

// embeddedEngine is satisfied by the single-file engines selected at build time.
type embeddedEngine interface {
	storage.Engine
	storage.Sweeper
}

const (
	flagAddr        = "addr"
	flagRedisURL    = "redis-url"
	flagBackend     = "backend"
	flagData        = "data"
	flagPoolSize    = "pool-size"
	flagPoolTimeout = "pool-timeout"
	flagBaseURL     = "base-url"
	flagBehindProxy = "behind-proxy"
	flagLogLevel    = "log-level"
)

// appFlags builds fresh flag values; urfave/cli writes env values back into them.
func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagAddr,
			Value:   "127.0.0.1:3000",
			Usage:   "listen address",
			EnvVars: []string{"ONCEPASTE_ADDR"},
		},
		&cli.StringFlag{
			Name:    flagRedisURL,
			Value:   redisstore.DefaultURL,
			Usage:   "redis server url; a first positional argument takes precedence",
			EnvVars: []string{"ONCEPASTE_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    flagBackend,
			Value:   backendRedis,
			Usage:   "storage backend: redis, embedded, or memory",
			EnvVars: []string{"ONCEPASTE_BACKEND"},
		},
		&cli.StringFlag{
			Name:    flagData,
			Value:   "./oncepaste.db",
			Usage:   "path to the data file of the embedded backend",
			EnvVars: []string{"ONCEPASTE_DATA"},
		},
		&cli.IntFlag{
			Name:    flagPoolSize,
			Value:   storage.DefaultPoolSize,
			Usage:   "maximum number of concurrent store connections",
			EnvVars: []string{"ONCEPASTE_POOL_SIZE"},
		},
		&cli.DurationFlag{
			Name:    flagPoolTimeout,
			Value:   storage.DefaultPoolTimeout,
			Usage:   "how long an operation waits for a free store connection",
			EnvVars: []string{"ONCEPASTE_POOL_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    flagBaseURL,
			Usage:   "canonical base URL used in share links (optional)",
			EnvVars: []string{"ONCEPASTE_BASE_URL"},
		},
		&cli.BoolFlag{
			Name:    flagBehindProxy,
			Usage:   "trust proxy headers for client address and scheme",
			EnvVars: []string{"ONCEPASTE_BEHIND_PROXY"},
		},
		&cli.StringFlag{
			Name:    flagLogLevel,
			Value:   "info",
			Usage:   "log level: debug, info, warn, or error",
			EnvVars: []string{"ONCEPASTE_LOG_LEVEL"},
		},
	}
}

func main() {
	app := newApp(run)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(action func(*cli.Context, config) error) *cli.App {
	return &cli.App{
		Name:      "oncepaste",
		Usage:     "serve pastes that can be read exactly once",
		ArgsUsage: "[redis-url]",
		Flags:     appFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := parseConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return action(c, cfg)
		},
	}
}

type config struct {
	addr        string
	redisURL    string
	backend     string
	dataPath    string
	poolSize    int
	poolTimeout time.Duration
	baseURL     string
	behindProxy bool
	logLevel    slog.Level
}

func parseConfig(c *cli.Context) (config, error) {
	cfg := config{
		addr:        c.String(flagAddr),
		redisURL:    c.String(flagRedisURL),
		backend:     c.String(flagBackend),
		dataPath:    c.String(flagData),
		poolSize:    c.Int(flagPoolSize),
		poolTimeout: c.Duration(flagPoolTimeout),
		baseURL:     c.String(flagBaseURL),
		behindProxy: c.Bool(flagBehindProxy),
	}
	if c.NArg() > 1 {
		return cfg, errors.New("at most one positional argument (redis url) is accepted")
	}
	if c.NArg() == 1 {
		cfg.redisURL = c.Args().First()
	}

	switch cfg.backend {
	case backendRedis, backendEmbedded, backendMemory:
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.backend)
	}
	if cfg.poolSize <= 0 {
		return cfg, errors.New("pool-size must be positive")
	}
	if cfg.poolTimeout <= 0 {
		return cfg, errors.New("pool-timeout must be positive")
	}
	if err := cfg.logLevel.UnmarshalText([]byte(c.String(flagLogLevel))); err != nil {
		return cfg, fmt.Errorf("invalid log-level: %w", err)
	}
	return cfg, nil
}

func run(c *cli.Context, cfg config) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed opening data store", "backend", cfg.backend, "error", err)
		return err
	}

	store := paste.New(engine, paste.WithLogger(logger))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		store.Metrics(),
	)

	srv, err := httpserver.New(httpserver.Config{
		Pastes:     store,
		Health:     engine,
		Gatherer:   reg,
		TrustProxy: cfg.behindProxy,
		BaseURL:    cfg.baseURL,
		Logger:     logger,
	})
	if err != nil {
		_ = engine.Close()
		return fmt.Errorf("construct server: %w", err)
	}

	srvHTTP := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.addr, "backend", cfg.backend)
		if err := srvHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown http server: %w", err))
		}
	case err := <-errCh:
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}
	if err := engine.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func openEngine(ctx context.Context, cfg config, logger *slog.Logger) (storage.Engine, error) {
	switch cfg.backend {
	case backendEmbedded:
		engine, err := openEmbedded(cfg.dataPath)
		if err != nil {
			return nil, err
		}
		storage.StartJanitor(ctx, backendEmbedded, engine, time.Minute, logger)
		return storage.Limit(engine, cfg.poolSize, cfg.poolTimeout), nil
	case backendMemory:
		engine := memstore.New()
		storage.StartJanitor(ctx, backendMemory, engine, time.Minute, logger)
		return storage.Limit(engine, cfg.poolSize, cfg.poolTimeout), nil
	default:
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		engine, err := redisstore.Open(openCtx, redisOptions(cfg))
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

func redisOptions(cfg config) redisstore.Options {
	return redisstore.Options{
		URL:         cfg.redisURL,
		PoolSize:    cfg.poolSize,
		PoolTimeout: cfg.poolTimeout,
	}
}
