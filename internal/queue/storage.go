package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEmails    = []byte("emails")
	bucketScheduled = []byte("scheduled")
)

// BoltStorage implements Queue using BoltDB. Emails live in the emails
// bucket keyed by ID; the scheduled bucket is a time-ordered index of
// pending items only.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage creates a new BoltDB storage
func NewBoltStorage(path string) (*BoltStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEmails, bucketScheduled} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

// Enqueue adds an email to the queue
func (s *BoltStorage) Enqueue(ctx context.Context, email *QueuedEmail) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)

		if email.ID == "" {
			email.ID = uuid.New().String()
		}
		if email.Status == "" {
			email.Status = StatusPending
		}
		if email.CreatedAt.IsZero() {
			email.CreatedAt = time.Now()
		}
		email.UpdatedAt = time.Now()

		data, err := json.Marshal(email)
		if err != nil {
			return fmt.Errorf("failed to marshal email: %w", err)
		}
		if err := emailBucket.Put([]byte(email.ID), data); err != nil {
			return fmt.Errorf("failed to store email: %w", err)
		}

		// Add to scheduled index
		scheduledBucket := tx.Bucket(bucketScheduled)
		indexKey := makeIndexKey(email.ScheduledFor, email.ID)
		if err := scheduledBucket.Put(indexKey, []byte(email.ID)); err != nil {
			return fmt.Errorf("failed to add to scheduled index: %w", err)
		}

		return nil
	})
}

// Due returns up to limit due emails, marking each processing
func (s *BoltStorage) Due(ctx context.Context, limit int) ([]*QueuedEmail, error) {
	var due []*QueuedEmail

	err := s.db.Update(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)
		scheduledBucket := tx.Bucket(bucketScheduled)

		c := scheduledBucket.Cursor()
		now := time.Now()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts := parseTimestampFromKey(k)
			if ts.After(now) {
				break // All remaining are in the future
			}

			data := emailBucket.Get(v)
			if data == nil {
				// Email was deleted, clean up index
				c.Delete()
				continue
			}

			var e QueuedEmail
			if err := json.Unmarshal(data, &e); err != nil {
				continue
			}

			// The index may briefly contain items that were cancelled
			// after scheduling; drop them here.
			if e.Status != StatusPending {
				c.Delete()
				continue
			}

			e.Status = StatusProcessing
			e.UpdatedAt = now

			updated, err := json.Marshal(&e)
			if err != nil {
				return err
			}
			if err := emailBucket.Put([]byte(e.ID), updated); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}

			due = append(due, &e)
			if limit > 0 && len(due) >= limit {
				return nil
			}
		}

		return nil
	})

	return due, err
}

// Update updates a queued email
func (s *BoltStorage) Update(ctx context.Context, email *QueuedEmail) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)

		email.UpdatedAt = time.Now()

		data, err := json.Marshal(email)
		if err != nil {
			return fmt.Errorf("failed to marshal email: %w", err)
		}
		if err := emailBucket.Put([]byte(email.ID), data); err != nil {
			return fmt.Errorf("failed to update email: %w", err)
		}

		// A pending email goes back on the scheduled index
		if email.Status == StatusPending {
			scheduledBucket := tx.Bucket(bucketScheduled)
			indexKey := makeIndexKey(email.ScheduledFor, email.ID)
			if err := scheduledBucket.Put(indexKey, []byte(email.ID)); err != nil {
				return fmt.Errorf("failed to add to scheduled index: %w", err)
			}
		}

		return nil
	})
}

// Get retrieves a queued email by ID
func (s *BoltStorage) Get(ctx context.Context, id string) (*QueuedEmail, error) {
	var email *QueuedEmail

	err := s.db.View(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)
		data := emailBucket.Get([]byte(id))
		if data == nil {
			return nil
		}

		email = &QueuedEmail{}
		return json.Unmarshal(data, email)
	})

	return email, err
}

// List returns queued emails with optional filtering
func (s *BoltStorage) List(ctx context.Context, filter ListFilter) ([]*QueuedEmail, error) {
	var emails []*QueuedEmail

	err := s.db.View(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)
		c := emailBucket.Cursor()

		count := 0
		skipped := 0

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e QueuedEmail
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}

			// Apply status filter
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}

			// Apply offset
			if skipped < filter.Offset {
				skipped++
				continue
			}

			emails = append(emails, &e)
			count++

			// Apply limit
			if filter.Limit > 0 && count >= filter.Limit {
				break
			}
		}

		return nil
	})

	return emails, err
}

// Cancel marks a non-terminal email cancelled and drops its index entry
func (s *BoltStorage) Cancel(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)

		data := emailBucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("queued email not found: %s", id)
		}

		var e QueuedEmail
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal email: %w", err)
		}

		if e.Status.IsTerminal() {
			return fmt.Errorf("queued email %s is already %s", id, e.Status)
		}

		scheduledBucket := tx.Bucket(bucketScheduled)
		scheduledBucket.Delete(makeIndexKey(e.ScheduledFor, e.ID))

		e.Status = StatusCancelled
		e.UpdatedAt = time.Now()

		updated, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		return emailBucket.Put([]byte(id), updated)
	})
}

// Requeue resets a failed or stuck processing email to pending, due now
func (s *BoltStorage) Requeue(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)

		data := emailBucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("queued email not found: %s", id)
		}

		var e QueuedEmail
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal email: %w", err)
		}

		if e.Status != StatusFailed && e.Status != StatusProcessing {
			return fmt.Errorf("queued email %s is %s, only failed or processing can be requeued", id, e.Status)
		}

		e.Status = StatusPending
		e.ScheduledFor = time.Now()
		e.Error = ""
		e.UpdatedAt = time.Now()

		updated, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		if err := emailBucket.Put([]byte(id), updated); err != nil {
			return err
		}

		scheduledBucket := tx.Bucket(bucketScheduled)
		indexKey := makeIndexKey(e.ScheduledFor, e.ID)
		return scheduledBucket.Put(indexKey, []byte(e.ID))
	})
}

// Stats returns queue statistics
func (s *BoltStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)
		c := emailBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e QueuedEmail
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}

			stats.Total++
			switch e.Status {
			case StatusPending:
				stats.Pending++
			case StatusProcessing:
				stats.Processing++
			case StatusSent:
				stats.Sent++
			case StatusFailed:
				stats.Failed++
			case StatusSkipped:
				stats.Skipped++
			case StatusCancelled:
				stats.Cancelled++
			}
		}

		return nil
	})

	return stats, err
}

// CleanupTerminal removes terminal emails older than maxAge. Failed
// items are kept so operators can inspect and requeue them.
func (s *BoltStorage) CleanupTerminal(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		emailBucket := tx.Bucket(bucketEmails)
		c := emailBucket.Cursor()

		var toDelete [][]byte

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e QueuedEmail
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}

			if e.Status == StatusFailed || !e.Status.IsTerminal() {
				continue
			}
			if e.UpdatedAt.Before(cutoff) {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}

		for _, k := range toDelete {
			if err := emailBucket.Delete(k); err != nil {
				return err
			}
			deleted++
		}

		return nil
	})

	return deleted, err
}

// Close closes the database connection
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// makeIndexKey creates a sortable key from timestamp and ID
func makeIndexKey(t time.Time, id string) []byte {
	// Format: timestamp (RFC3339Nano) + ":" + id
	return []byte(t.UTC().Format(time.RFC3339Nano) + ":" + id)
}

// parseTimestampFromKey extracts timestamp from index key
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	// Find the separator
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			ts, _ := time.Parse(time.RFC3339Nano, s[:i])
			return ts
		}
	}
	return time.Time{}
}
