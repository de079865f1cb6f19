package pathway

import (
	"time"

	"github.com/google/uuid"
)

// Pool is the coarse step category used to scope booking invariants.
type Pool string

const (
	PoolConsult Pool = "consult"
	PoolWork    Pool = "work"
	PoolControl Pool = "control"
)

// Valid reports whether p is a known pool.
func (p Pool) Valid() bool {
	switch p {
	case PoolConsult, PoolWork, PoolControl:
		return true
	}
	return false
}

// StepTemplate is one ordered entry of a pathway definition. Templates
// are stored as a JSONB array on the pathway row; order in the slice is
// the template order.
type StepTemplate struct {
	Code              string `json:"code"`
	Label             string `json:"label"`
	Pool              Pool   `json:"pool"`
	DurationMinutes   int    `json:"duration_minutes"`
	DefaultOffsetDays int    `json:"default_offset_days,omitempty"`
	RequiresPrecommit bool   `json:"requires_precommit,omitempty"`
}

// Pathway maps to the pathway table: a reusable template of ordered
// clinical steps, classified by exactly one of reason code or treatment
// type.
type Pathway struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	ReasonCode      *string        `db:"reason_code" json:"reason_code,omitempty"`
	TreatmentTypeID *uuid.UUID     `db:"treatment_type_id" json:"treatment_type_id,omitempty"`
	Steps           []StepTemplate `db:"steps" json:"steps"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// FindStep returns the first template matching code across the ordered
// template list, or nil.
func (p *Pathway) FindStep(code string) *StepTemplate {
	for i := range p.Steps {
		if p.Steps[i].Code == code {
			return &p.Steps[i]
		}
	}
	return nil
}
