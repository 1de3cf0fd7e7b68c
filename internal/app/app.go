// Package app wires the application together: database, queue,
// provider registry, dispatcher, background worker and HTTP servers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernwell/nurture/internal/api"
	"github.com/fernwell/nurture/internal/config"
	"github.com/fernwell/nurture/internal/db"
	"github.com/fernwell/nurture/internal/dispatch"
	"github.com/fernwell/nurture/internal/metrics"
	"github.com/fernwell/nurture/internal/provider"
	"github.com/fernwell/nurture/internal/queue"
	"github.com/fernwell/nurture/internal/worker"
)

// App is the main application
type App struct {
	config        *config.Config
	database      *db.DB
	queue         queue.Queue
	registry      *provider.Registry
	dispatcher    *dispatch.Dispatcher
	worker        *worker.Worker
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	storage, err := queue.NewBoltStorage(cfg.Queue.Path)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open queue storage: %w", err)
	}

	registry := NewRegistry()

	dispatcher := dispatch.New(database.DB, storage, registry, logger.With("component", "dispatch"), cfg.Queue.BatchSize)

	// Environment variables seed the settings store on startup, then
	// every registered adapter picks up its credentials.
	if err := dispatcher.SyncEnvSettings(); err != nil {
		logger.Warn("environment settings sync failed", "error", err)
	}
	if err := dispatcher.ConfigureProviders(); err != nil {
		logger.Warn("provider configuration failed", "error", err)
	}

	workerCfg := worker.DefaultConfig()
	if cfg.Queue.PollInterval > 0 {
		workerCfg.PollInterval = cfg.Queue.PollInterval
	}
	if cfg.Queue.Retention > 0 {
		workerCfg.Retention = cfg.Queue.Retention
	}
	w := worker.New(dispatcher, storage, logger.With("component", "worker"), workerCfg)

	apiServer := api.NewServer(database.DB, storage, dispatcher, registry, cfg, logger.With("component", "api"))

	app := &App{
		config:     cfg,
		database:   database,
		queue:      storage,
		registry:   registry,
		dispatcher: dispatcher,
		worker:     w,
		apiServer:  apiServer,
		logger:     logger,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		app.collector = metrics.NewCollector(m, storage, logger.With("component", "metrics"), 15*time.Second)
		app.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
	}

	return app, nil
}

// NewRegistry builds a registry with every supported provider adapter.
func NewRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(provider.NewSendGrid())
	registry.Register(provider.NewMailerLite())
	registry.Register(provider.NewBrevo())
	registry.Register(provider.NewMailchimp())
	registry.Register(provider.NewConvertKit())
	registry.Register(provider.NewOmnisend())
	registry.Register(provider.NewSendPulse())
	registry.Register(provider.NewCustom())
	return registry
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting nurture",
		"api_addr", a.config.Server.ListenAddr,
		"active_provider", a.registry.ActiveName(),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.worker.Start()
	if a.collector != nil {
		a.collector.Start()
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the queue worker before the HTTP surface so in-flight
	// sends finish with the providers still configured.
	a.worker.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.queue.Close(); err != nil {
		a.logger.Error("queue close error", "error", err)
	}

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
