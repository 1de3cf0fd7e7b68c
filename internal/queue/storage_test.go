package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func setupStorage(t *testing.T) *BoltStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "queue.db")
	storage, err := NewBoltStorage(dbPath)
	if err != nil {
		t.Fatalf("NewBoltStorage() error = %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestBoltStorage_EnqueueAndGet(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	email := &QueuedEmail{
		ID:           "qe-1",
		SubscriberID: "sub-1",
		TemplateID:   "tmpl-1",
		ScheduledFor: time.Now().Add(-time.Minute),
	}

	if err := storage.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got, err := storage.Get(ctx, "qe-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if got.Status != StatusPending {
		t.Errorf("Get().Status = %v, want %v", got.Status, StatusPending)
	}
	if got.SubscriberID != "sub-1" || got.TemplateID != "tmpl-1" {
		t.Errorf("Get() = %v/%v, want sub-1/tmpl-1", got.SubscriberID, got.TemplateID)
	}

	// Get nonexistent
	notFound, err := storage.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if notFound != nil {
		t.Errorf("Get() for nonexistent = %+v, want nil", notFound)
	}
}

func TestBoltStorage_Due(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	pastA := &QueuedEmail{ID: "past-a", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now().Add(-2 * time.Hour)}
	pastB := &QueuedEmail{ID: "past-b", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now().Add(-time.Hour)}
	future := &QueuedEmail{ID: "future", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now().Add(time.Hour)}

	for _, e := range []*QueuedEmail{future, pastB, pastA} {
		if err := storage.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", e.ID, err)
		}
	}

	due, err := storage.Due(ctx, 0)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("Due() returned %d emails, want 2", len(due))
	}

	// Oldest scheduled first
	if due[0].ID != "past-a" || due[1].ID != "past-b" {
		t.Errorf("Due() order = %s, %s, want past-a, past-b", due[0].ID, due[1].ID)
	}
	for _, e := range due {
		if e.Status != StatusProcessing {
			t.Errorf("Due() item %s status = %v, want %v", e.ID, e.Status, StatusProcessing)
		}
	}

	// A second scan must not hand out the same items again
	again, err := storage.Due(ctx, 0)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Due() second scan returned %d emails, want 0", len(again))
	}

	// Future item untouched
	got, _ := storage.Get(ctx, "future")
	if got.Status != StatusPending {
		t.Errorf("future item status = %v, want %v", got.Status, StatusPending)
	}
}

func TestBoltStorage_DueLimit(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		e := &QueuedEmail{ID: id, SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now().Add(-time.Duration(10-i) * time.Minute)}
		if err := storage.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	due, err := storage.Due(ctx, 2)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 2 {
		t.Errorf("Due(limit=2) returned %d emails, want 2", len(due))
	}
}

func TestBoltStorage_StatusTransitions(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	email := &QueuedEmail{ID: "qe-1", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now().Add(-time.Minute)}
	if err := storage.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	due, _ := storage.Due(ctx, 0)
	if len(due) != 1 {
		t.Fatalf("Due() returned %d emails, want 1", len(due))
	}

	// Mark failed
	e := due[0]
	e.Status = StatusFailed
	e.Error = "sendgrid 500 internal error"
	if err := storage.Update(ctx, e); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := storage.Get(ctx, "qe-1")
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("Get() after fail = %v/%q, want failed with error", got.Status, got.Error)
	}

	// Requeue the failed item
	if err := storage.Requeue(ctx, "qe-1"); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	got, _ = storage.Get(ctx, "qe-1")
	if got.Status != StatusPending {
		t.Errorf("Get() after requeue = %v, want %v", got.Status, StatusPending)
	}
	if got.Error != "" {
		t.Errorf("Get() after requeue kept error %q", got.Error)
	}

	// Requeued item is due again
	due, _ = storage.Due(ctx, 0)
	if len(due) != 1 || due[0].ID != "qe-1" {
		t.Fatalf("Due() after requeue returned %d emails, want the requeued one", len(due))
	}

	// Sent is terminal: requeue must refuse
	e = due[0]
	e.Status = StatusSent
	if err := storage.Update(ctx, e); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := storage.Requeue(ctx, "qe-1"); err == nil {
		t.Error("Requeue() of sent email succeeded, want error")
	}
}

func TestBoltStorage_Cancel(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	email := &QueuedEmail{ID: "qe-1", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now().Add(-time.Minute)}
	if err := storage.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := storage.Cancel(ctx, "qe-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	got, _ := storage.Get(ctx, "qe-1")
	if got.Status != StatusCancelled {
		t.Errorf("Get() after cancel = %v, want %v", got.Status, StatusCancelled)
	}

	// Cancelled item is not handed out
	due, _ := storage.Due(ctx, 0)
	if len(due) != 0 {
		t.Errorf("Due() after cancel returned %d emails, want 0", len(due))
	}

	// Cancelling a terminal item fails
	if err := storage.Cancel(ctx, "qe-1"); err == nil {
		t.Error("Cancel() of cancelled email succeeded, want error")
	}
}

func TestBoltStorage_Stats(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	statuses := []Status{StatusPending, StatusSent, StatusSent, StatusFailed, StatusSkipped}
	for i, st := range statuses {
		e := &QueuedEmail{
			ID:           string(rune('a' + i)),
			SubscriberID: "s",
			TemplateID:   "t",
			ScheduledFor: time.Now().Add(time.Hour),
			Status:       st,
		}
		if err := storage.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("Stats().Total = %d, want 5", stats.Total)
	}
	if stats.Pending != 1 || stats.Sent != 2 || stats.Failed != 1 || stats.Skipped != 1 {
		t.Errorf("Stats() = %+v, want pending=1 sent=2 failed=1 skipped=1", stats)
	}
}

func TestBoltStorage_List(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		e := &QueuedEmail{ID: id, SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now()}
		if err := storage.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	all, err := storage.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d emails, want 3", len(all))
	}

	pending, err := storage.List(ctx, ListFilter{Status: StatusPending, Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("List(pending, limit=2) returned %d emails, want 2", len(pending))
	}
}

func TestBoltStorage_CleanupTerminal(t *testing.T) {
	storage := setupStorage(t)
	ctx := context.Background()

	old := &QueuedEmail{ID: "old-sent", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now(), Status: StatusSent}
	failed := &QueuedEmail{ID: "old-failed", SubscriberID: "s", TemplateID: "t", ScheduledFor: time.Now(), Status: StatusFailed}
	for _, e := range []*QueuedEmail{old, failed} {
		if err := storage.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	// Items were just written; an immediate cleanup with a long maxAge
	// removes nothing.
	deleted, err := storage.CleanupTerminal(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupTerminal() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("CleanupTerminal() deleted %d, want 0", deleted)
	}

	// A tiny maxAge removes the sent item but keeps the failed one
	time.Sleep(10 * time.Millisecond)
	deleted, err = storage.CleanupTerminal(ctx, time.Millisecond)
	if err != nil {
		t.Fatalf("CleanupTerminal() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("CleanupTerminal() deleted %d, want 1", deleted)
	}

	if got, _ := storage.Get(ctx, "old-sent"); got != nil {
		t.Error("CleanupTerminal() kept the sent item")
	}
	if got, _ := storage.Get(ctx, "old-failed"); got == nil {
		t.Error("CleanupTerminal() removed the failed item, want kept")
	}
}
