package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernwell/nurture/internal/models"
)

type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

const subscriberColumns = `id, email, COALESCE(first_name, '') as first_name,
	COALESCE(last_name, '') as last_name, COALESCE(source, '') as source,
	is_subscribed, unsubscribe_token, last_email_sent_at, created_at, updated_at`

// Save inserts a new subscriber. ID and UnsubscribeToken are generated
// when empty.
func (r *SubscriberRepository) Save(sub *models.Subscriber) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.UnsubscribeToken == "" {
		sub.UnsubscribeToken = uuid.New().String()
	}
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO subscribers (id, email, first_name, last_name, source, is_subscribed, unsubscribe_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Email, sub.FirstName, sub.LastName, sub.Source, sub.IsSubscribed, sub.UnsubscribeToken, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}
	return nil
}

// GetByEmail returns a subscriber by email, nil if not found
func (r *SubscriberRepository) GetByEmail(email string) (*models.Subscriber, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = ?`, email))
}

// GetByID returns a subscriber by ID, nil if not found
func (r *SubscriberRepository) GetByID(id string) (*models.Subscriber, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = ?`, id))
}

// GetByUnsubscribeToken returns a subscriber by unsubscribe token, nil if not found
func (r *SubscriberRepository) GetByUnsubscribeToken(token string) (*models.Subscriber, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT `+subscriberColumns+` FROM subscribers WHERE unsubscribe_token = ?`, token))
}

// Update writes mutable subscriber fields back to the store
func (r *SubscriberRepository) Update(sub *models.Subscriber) error {
	sub.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE subscribers
		SET first_name = ?, last_name = ?, source = ?, is_subscribed = ?, last_email_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		sub.FirstName, sub.LastName, sub.Source, sub.IsSubscribed, sub.LastEmailSentAt, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscriber: %w", err)
	}
	return nil
}

// List returns subscribers ordered by creation time, newest first
func (r *SubscriberRepository) List(limit, offset int) ([]models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscriber{}
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Source,
			&s.IsSubscribed, &s.UnsubscribeToken, &s.LastEmailSentAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *SubscriberRepository) scanOne(row *sql.Row) (*models.Subscriber, error) {
	s := &models.Subscriber{}
	err := row.Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Source,
		&s.IsSubscribed, &s.UnsubscribeToken, &s.LastEmailSentAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
