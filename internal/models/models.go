package models

import "time"

// Subscriber is a captured lead. Subscribers are never hard-deleted;
// unsubscribing flips IsSubscribed and keeps the row.
type Subscriber struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Source           string     `json:"source"`
	IsSubscribed     bool       `json:"is_subscribed"`
	UnsubscribeToken string     `json:"unsubscribe_token"`
	LastEmailSentAt  *time.Time `json:"last_email_sent_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FullName returns "First Last" with empty parts omitted.
func (s *Subscriber) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	default:
		return s.FirstName + " " + s.LastName
	}
}

// EmailSequence is an ordered, delay-keyed set of templates forming a
// drip campaign. Ordering is derived from the templates' DelayDays.
type EmailSequence struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmailTemplate is a reusable message body. SequenceID is empty for
// standalone templates. Edits apply prospectively: queued emails carry
// only the template ID and render at send time.
type EmailTemplate struct {
	ID         string    `json:"id"`
	SequenceID string    `json:"sequence_id,omitempty"`
	Name       string    `json:"name"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html"`
	Text       string    `json:"text"`
	Attachment string    `json:"attachment,omitempty"`
	DelayDays  int       `json:"delay_days"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EmailLogEntry records one delivery made through a provider.
type EmailLogEntry struct {
	ID           int64     `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	TemplateID   string    `json:"template_id,omitempty"`
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// Setting is a persisted key/value configuration entry.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
