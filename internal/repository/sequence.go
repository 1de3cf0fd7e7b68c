package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernwell/nurture/internal/models"
)

type SequenceRepository struct {
	db *sql.DB
}

func NewSequenceRepository(db *sql.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Create inserts a new email sequence
func (r *SequenceRepository) Create(seq *models.EmailSequence) error {
	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	seq.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO email_sequences (id, name, description, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		seq.ID, seq.Name, seq.Description, seq.IsActive, seq.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sequence: %w", err)
	}
	return nil
}

// GetByID returns a sequence by ID, nil if not found
func (r *SequenceRepository) GetByID(id string) (*models.EmailSequence, error) {
	seq := &models.EmailSequence{}
	err := r.db.QueryRow(`
		SELECT id, name, COALESCE(description, '') as description, is_active, created_at
		FROM email_sequences WHERE id = ?`, id,
	).Scan(&seq.ID, &seq.Name, &seq.Description, &seq.IsActive, &seq.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// List returns all sequences
func (r *SequenceRepository) List() ([]models.EmailSequence, error) {
	rows, err := r.db.Query(`
		SELECT id, name, COALESCE(description, '') as description, is_active, created_at
		FROM email_sequences ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sequences := []models.EmailSequence{}
	for rows.Next() {
		var s models.EmailSequence
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		sequences = append(sequences, s)
	}
	return sequences, rows.Err()
}
