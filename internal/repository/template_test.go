package repository

import (
	"testing"

	"github.com/fernwell/nurture/internal/models"
)

func TestTemplateRepository_SequenceOrdering(t *testing.T) {
	db := setupTestDB(t)
	sequences := NewSequenceRepository(db)
	templates := NewTemplateRepository(db)

	seq := &models.EmailSequence{Name: "welcome", IsActive: true}
	if err := sequences.Create(seq); err != nil {
		t.Fatalf("Create() sequence error = %v", err)
	}

	// Insert out of order to verify the returned ordering
	for _, delay := range []int{5, 0, 7, 1, 3} {
		tmpl := &models.EmailTemplate{
			SequenceID: seq.ID,
			Name:       "step",
			Subject:    "Step",
			HTML:       "<p>hi</p>",
			DelayDays:  delay,
			IsActive:   true,
		}
		if err := templates.Create(tmpl); err != nil {
			t.Fatalf("Create() template error = %v", err)
		}
	}

	got, err := templates.GetBySequenceID(seq.ID)
	if err != nil {
		t.Fatalf("GetBySequenceID() error = %v", err)
	}

	wantDelays := []int{0, 1, 3, 5, 7}
	if len(got) != len(wantDelays) {
		t.Fatalf("GetBySequenceID() returned %d templates, want %d", len(got), len(wantDelays))
	}
	for i, want := range wantDelays {
		if got[i].DelayDays != want {
			t.Errorf("GetBySequenceID()[%d].DelayDays = %d, want %d", i, got[i].DelayDays, want)
		}
	}
}

func TestTemplateRepository_InactiveExcluded(t *testing.T) {
	db := setupTestDB(t)
	sequences := NewSequenceRepository(db)
	templates := NewTemplateRepository(db)

	seq := &models.EmailSequence{Name: "welcome", IsActive: true}
	if err := sequences.Create(seq); err != nil {
		t.Fatalf("Create() sequence error = %v", err)
	}

	active := &models.EmailTemplate{SequenceID: seq.ID, Name: "a", Subject: "A", IsActive: true}
	inactive := &models.EmailTemplate{SequenceID: seq.ID, Name: "b", Subject: "B", DelayDays: 1, IsActive: false}
	if err := templates.Create(active); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := templates.Create(inactive); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := templates.GetBySequenceID(seq.ID)
	if err != nil {
		t.Fatalf("GetBySequenceID() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("GetBySequenceID() = %d templates, want only the active one", len(got))
	}
}

func TestTemplateRepository_GetByIDMissing(t *testing.T) {
	db := setupTestDB(t)
	templates := NewTemplateRepository(db)

	got, err := templates.GetByID("missing")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByID() for missing = %+v, want nil", got)
	}
}

func TestTemplateRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	templates := NewTemplateRepository(db)

	tmpl := &models.EmailTemplate{Name: "standalone", Subject: "Hello", IsActive: true}
	if err := templates.Create(tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tmpl.Subject = "Hello again"
	tmpl.DelayDays = 2
	if err := templates.Update(tmpl); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := templates.GetByID(tmpl.ID)
	if got.Subject != "Hello again" || got.DelayDays != 2 {
		t.Errorf("Update() persisted = %q/%d, want Hello again/2", got.Subject, got.DelayDays)
	}
}
