// Package api exposes the HTTP surface: public lead capture and
// unsubscribe endpoints plus authenticated management routes.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fernwell/nurture/internal/config"
	"github.com/fernwell/nurture/internal/dispatch"
	"github.com/fernwell/nurture/internal/metrics"
	"github.com/fernwell/nurture/internal/provider"
	"github.com/fernwell/nurture/internal/queue"
	"github.com/fernwell/nurture/internal/repository"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	dispatcher *dispatch.Dispatcher
	registry   *provider.Registry
	queue      queue.Queue
	settings   *repository.SettingsRepository
	subs       *repository.SubscriberRepository
	emailLog   *repository.EmailLogRepository
	cfg        *config.Config
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(db *sql.DB, q queue.Queue, d *dispatch.Dispatcher, reg *provider.Registry, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		dispatcher: d,
		registry:   reg,
		queue:      q,
		settings:   repository.NewSettingsRepository(db),
		subs:       repository.NewSubscriberRepository(db),
		emailLog:   repository.NewEmailLogRepository(db),
		cfg:        cfg,
		logger:     logger,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Public endpoints: lead capture forms and unsubscribe links hit
	// these without credentials.
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/api/v1/subscribe", s.handleSubscribe)
	s.router.Get("/api/v1/unsubscribe", s.handleUnsubscribe)
	s.router.Post("/api/v1/unsubscribe", s.handleUnsubscribe)

	// Management endpoints
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/providers", s.handleListProviders)
		r.Put("/providers/active", s.handleSetActiveProvider)
		r.Post("/providers/{name}/test", s.handleTestProvider)

		r.Put("/settings", s.handleSetSettings)

		r.Get("/queue", s.handleQueue)
		r.Post("/queue/{id}/retry", s.handleRetryQueued)
		r.Delete("/queue/{id}", s.handleCancelQueued)

		r.Get("/subscribers", s.handleListSubscribers)
		r.Get("/subscribers/{id}/emails", s.handleSubscriberEmails)
		r.Post("/sequences/{id}/subscribe", s.handleSequenceSubscribe)
	})
}

// Router returns the HTTP handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
