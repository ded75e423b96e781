package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/ideabox/internal/adapters/http/api"
	"github.com/okian/ideabox/internal/adapters/http/site"
	"github.com/okian/ideabox/internal/adapters/http/swagger"
	"github.com/okian/ideabox/internal/adapters/mq/pubsub"
	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	app "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/config"
	"github.com/okian/ideabox/internal/domain/search"
	"github.com/okian/ideabox/internal/domain/workflow"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(slog.LevelInfo)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "ideabox exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// stack is the wired process: store, optional redis, service and the HTTP
// routes on top.
type stack struct {
	store repository.Store
	redis *redis.Client
	svc   *app.Service
	auth  *session.Authenticator
	mux   *http.ServeMux
}

func (s *stack) close() {
	s.svc.Stop()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.store.Close()
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	st, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	if metrics.Enabled() {
		// Start system metrics updater
		go startSystemMetricsUpdater(ctx)

		// Start service metrics updater
		go startServiceMetricsUpdater(ctx, st.svc)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           st.mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// build opens the store and redis, starts the service and registers routes.
// Everything opened is closed again when a later step fails.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *stack, err error) {
	metrics.Configure(metrics.WithMetricsEnabled(cfg.MetricsEnabled))

	st := &stack{}
	defer func() {
		if err == nil {
			return
		}
		if st.redis != nil {
			_ = st.redis.Close()
		}
		if st.store != nil {
			_ = st.store.Close()
		}
	}()

	if st.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if cfg.RedisURL != "" {
		if st.redis, err = pubsub.Connect(ctx, cfg.RedisURL); err != nil {
			return nil, err
		}
	}

	authOpts := []session.Option{session.WithLogger(log.Named("session"))}
	if st.redis != nil {
		authOpts = append(authOpts, session.WithCache(session.NewRedisCache(st.redis)))
	}
	verifier := session.NewVerifier([]byte(cfg.JWTSecret), session.WithIssuer(cfg.JWTIssuer))
	st.auth = session.NewAuthenticator(verifier, st.store, authOpts...)

	st.svc = app.New(st.store, serviceOptions(cfg, log, st.redis, st.auth)...)
	if err = st.svc.EnsureCommittee(ctx, cfg.CommitteeIDs); err != nil {
		return nil, fmt.Errorf("bootstrap committee: %w", err)
	}
	if err = st.svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}

	// HTTP mux and routes.
	st.mux = http.NewServeMux()
	site.Register(ctx, st.mux)
	swagger.Register(ctx, st.mux)
	api.NewServer(st.svc, st.auth).Register(ctx, st.mux)
	return st, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := repository.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repository.ApplyMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return repository.NewPostgresStore(db), nil
	default:
		return repository.NewMemoryStore(), nil
	}
}

func serviceOptions(cfg *config.Config, log logger.Logger, rdb *redis.Client, auth *session.Authenticator) []app.Option {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithDispatcherCount(cfg.DispatcherCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithPageSizes(cfg.PageSize, cfg.GroupFirst, cfg.GroupPage),
		app.WithAutoExpandPages(cfg.SearchAutoloadPages, cfg.ManagedAutoloadPages),
		app.WithSearchOptions(search.Options{
			MinLen:      cfg.SearchMinLen,
			MaxLen:      cfg.SearchMaxLen,
			MaxPrefixes: cfg.SearchMaxPrefixes,
		}),
		app.WithAreas(cfg.Areas),
		app.WithPolicy(workflow.NewPolicy(workflow.WithStrict(cfg.WorkflowStrict))),
		app.WithInviteDays(cfg.InviteDefaultDays),
	}
	if rdb != nil {
		opts = append(opts, app.WithRedis(rdb))
	}
	if auth != nil {
		// Role and profile changes drop cached sessions.
		opts = append(opts, app.WithSinks(auth))
	}
	return opts
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics. GetStats already
// refreshes the queue and idea gauges.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if n, ok := stats["dispatcherCount"].(int); ok {
		metrics.UpdateDispatcherActiveCount(n)
	}
}
