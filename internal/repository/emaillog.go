package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fernwell/nurture/internal/models"
)

type EmailLogRepository struct {
	db *sql.DB
}

func NewEmailLogRepository(db *sql.DB) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

// RecordEmailSent appends a delivery record
func (r *EmailLogRepository) RecordEmailSent(entry *models.EmailLogEntry) error {
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}
	_, err := r.db.Exec(`
		INSERT INTO email_log (subscriber_id, template_id, provider, subject, status, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SubscriberID, entry.TemplateID, entry.Provider, entry.Subject, entry.Status, entry.Error, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record email: %w", err)
	}
	return nil
}

// ListBySubscriber returns delivery records for a subscriber, newest first
func (r *EmailLogRepository) ListBySubscriber(subscriberID string, limit int) ([]models.EmailLogEntry, error) {
	query := `
		SELECT id, subscriber_id, COALESCE(template_id, '') as template_id,
			COALESCE(provider, '') as provider, COALESCE(subject, '') as subject,
			status, COALESCE(error, '') as error, sent_at
		FROM email_log WHERE subscriber_id = ? ORDER BY sent_at DESC`
	args := []any{subscriberID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.EmailLogEntry{}
	for rows.Next() {
		var e models.EmailLogEntry
		if err := rows.Scan(&e.ID, &e.SubscriberID, &e.TemplateID, &e.Provider, &e.Subject, &e.Status, &e.Error, &e.SentAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountSince returns the number of deliveries recorded after the cutoff
func (r *EmailLogRepository) CountSince(cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM email_log WHERE sent_at > ?", cutoff).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
