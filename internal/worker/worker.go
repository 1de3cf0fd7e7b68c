// Package worker runs the queue processing loop in the background.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fernwell/nurture/internal/dispatch"
)

// Cleaner removes old terminal queue entries. The bolt storage
// implements it; tests can pass nil to disable retention.
type Cleaner interface {
	CleanupTerminal(ctx context.Context, maxAge time.Duration) (int, error)
}

// Config holds worker configuration
type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:    30 * time.Second,
		CleanupInterval: time.Hour,
		Retention:       30 * 24 * time.Hour,
	}
}

// Worker ticks the dispatcher and prunes finished queue entries.
type Worker struct {
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	cleaner    Cleaner
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new worker
func New(d *dispatch.Dispatcher, cleaner Cleaner, logger *slog.Logger, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		logger:     logger.With("component", "worker"),
		dispatcher: d,
		cleaner:    cleaner,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started", "poll_interval", w.cfg.PollInterval, "retention", w.cfg.Retention)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-poll.C:
			w.tick()
		case <-cleanup.C:
			w.cleanupOnce()
		}
	}
}

func (w *Worker) tick() {
	n, err := w.dispatcher.ProcessEmailQueue(w.ctx)
	if err != nil {
		w.logger.Error("queue processing failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Debug("queue processed", "items", n)
	}
}

func (w *Worker) cleanupOnce() {
	if w.cleaner == nil || w.cfg.Retention <= 0 {
		return
	}
	removed, err := w.cleaner.CleanupTerminal(w.ctx, w.cfg.Retention)
	if err != nil {
		w.logger.Error("queue cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		w.logger.Info("queue cleaned", "removed", removed)
	}
}
