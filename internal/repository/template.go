package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernwell/nurture/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, COALESCE(sequence_id, '') as sequence_id, name, subject,
	COALESCE(html, '') as html, COALESCE(text, '') as text,
	COALESCE(attachment, '') as attachment, delay_days, is_active, created_at, updated_at`

// Create inserts a new email template
func (r *TemplateRepository) Create(tmpl *models.EmailTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = tmpl.CreatedAt

	var seqID any
	if tmpl.SequenceID != "" {
		seqID = tmpl.SequenceID
	}

	_, err := r.db.Exec(`
		INSERT INTO email_templates (id, sequence_id, name, subject, html, text, attachment, delay_days, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.ID, seqID, tmpl.Name, tmpl.Subject, tmpl.HTML, tmpl.Text, tmpl.Attachment, tmpl.DelayDays, tmpl.IsActive, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, nil if not found
func (r *TemplateRepository) GetByID(id string) (*models.EmailTemplate, error) {
	tmpl := &models.EmailTemplate{}
	err := r.db.QueryRow(
		`SELECT `+templateColumns+` FROM email_templates WHERE id = ?`, id,
	).Scan(&tmpl.ID, &tmpl.SequenceID, &tmpl.Name, &tmpl.Subject, &tmpl.HTML, &tmpl.Text,
		&tmpl.Attachment, &tmpl.DelayDays, &tmpl.IsActive, &tmpl.CreatedAt, &tmpl.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// GetBySequenceID returns active templates of a sequence ordered by
// ascending delay_days. Sequence position is derived from this ordering.
func (r *TemplateRepository) GetBySequenceID(sequenceID string) ([]models.EmailTemplate, error) {
	rows, err := r.db.Query(
		`SELECT `+templateColumns+` FROM email_templates
		 WHERE sequence_id = ? AND is_active = 1
		 ORDER BY delay_days ASC`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []models.EmailTemplate{}
	for rows.Next() {
		var t models.EmailTemplate
		if err := rows.Scan(&t.ID, &t.SequenceID, &t.Name, &t.Subject, &t.HTML, &t.Text,
			&t.Attachment, &t.DelayDays, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Update writes template fields back to the store. Edits apply
// prospectively; queued emails reference templates by ID only.
func (r *TemplateRepository) Update(tmpl *models.EmailTemplate) error {
	tmpl.UpdatedAt = time.Now()

	var seqID any
	if tmpl.SequenceID != "" {
		seqID = tmpl.SequenceID
	}

	_, err := r.db.Exec(`
		UPDATE email_templates
		SET sequence_id = ?, name = ?, subject = ?, html = ?, text = ?, attachment = ?, delay_days = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		seqID, tmpl.Name, tmpl.Subject, tmpl.HTML, tmpl.Text, tmpl.Attachment, tmpl.DelayDays, tmpl.IsActive, tmpl.UpdatedAt, tmpl.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}
