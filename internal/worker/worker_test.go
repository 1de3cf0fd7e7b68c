package worker

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fernwell/nurture/internal/db"
	"github.com/fernwell/nurture/internal/dispatch"
	"github.com/fernwell/nurture/internal/provider"
	"github.com/fernwell/nurture/internal/queue"
)

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) CleanupTerminal(ctx context.Context, maxAge time.Duration) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "nurture.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	q, err := queue.NewBoltStorage(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return dispatch.New(database.DB, q, provider.NewRegistry(), logger, 10)
}

func TestWorkerStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cleaner := &countingCleaner{}

	w := New(newTestDispatcher(t), cleaner, logger, Config{
		PollInterval:    10 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
		Retention:       time.Hour,
	})

	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if cleaner.calls.Load() == 0 {
		t.Error("cleanup never ran")
	}
}

func TestWorkerStopWithoutTicks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := New(newTestDispatcher(t), nil, logger, Config{
		PollInterval:    time.Hour,
		CleanupInterval: time.Hour,
	})

	w.Start()
	// Stop must return promptly even when no tick has fired.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
