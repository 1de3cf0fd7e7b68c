package queue

import (
	"time"
)

// Status represents the status of a queued email
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition is expected
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// QueuedEmail is one scheduled send. It references exactly one
// subscriber and one template; both are resolved at processing time.
type QueuedEmail struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	TemplateID   string    `json:"template_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Stats represents queue statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
	Cancelled  int64 `json:"cancelled"`
	Total      int64 `json:"total"`
}

// ListFilter represents filter options for listing queued emails
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
