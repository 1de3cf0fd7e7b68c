package queue

import (
	"context"
)

// Queue defines the interface for scheduled email storage
type Queue interface {
	// Enqueue adds an email to the queue
	Enqueue(ctx context.Context, email *QueuedEmail) error

	// Due returns up to limit emails whose scheduled time has passed,
	// marking each one processing before returning it. A crashed run
	// leaves items in processing; Requeue puts them back.
	Due(ctx context.Context, limit int) ([]*QueuedEmail, error)

	// Update updates a queued email
	Update(ctx context.Context, email *QueuedEmail) error

	// Get retrieves a queued email by ID
	Get(ctx context.Context, id string) (*QueuedEmail, error)

	// List returns queued emails with optional filtering
	List(ctx context.Context, filter ListFilter) ([]*QueuedEmail, error)

	// Cancel marks a non-terminal email cancelled
	Cancel(ctx context.Context, id string) error

	// Requeue resets a failed or processing email to pending, due now
	Requeue(ctx context.Context, id string) error

	// Stats returns queue statistics
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the storage connection
	Close() error
}
