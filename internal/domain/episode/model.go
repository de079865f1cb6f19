package episode

import (
	"time"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
)

// Episode statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Step statuses.
const (
	StepPending   = "pending"
	StepScheduled = "scheduled"
	StepCompleted = "completed"
	StepSkipped   = "skipped"
)

// Intent states.
const (
	IntentOpen      = "open"
	IntentConverted = "converted"
	IntentCancelled = "cancelled"
)

// Episode maps to the episode table: one treatment case for one
// patient, open until terminally closed.
type Episode struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Status    string    `db:"status" json:"status"`
	Reason    string    `db:"reason" json:"reason"`
	// ProviderID is the assigned provider; intents are only projected
	// once it is set.
	ProviderID *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	// PathwayID is the legacy single-pathway pointer, kept in sync with
	// the first linked pathway for backward compatibility.
	PathwayID *uuid.UUID `db:"pathway_id" json:"pathway_id,omitempty"`
	// StageVersion increments on every stage transition.
	StageVersion int `db:"stage_version" json:"stage_version"`
	// SnapshotVersion guards optimistic metadata edits.
	SnapshotVersion int       `db:"snapshot_version" json:"snapshot_version"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the episode still accepts mutations.
func (e *Episode) IsOpen() bool { return e.Status == StatusOpen }

// PathwayLink maps to the episode_pathway junction table. Ordinal is
// insertion order, zero-based and contiguous per episode.
type PathwayLink struct {
	ID        uuid.UUID `db:"id" json:"id"`
	EpisodeID uuid.UUID `db:"episode_id" json:"episode_id"`
	PathwayID uuid.UUID `db:"pathway_id" json:"pathway_id"`
	Ordinal   int       `db:"ordinal" json:"ordinal"`
}

// Step maps to the episode_step table: one concrete row of the
// episode's flat, densely sequenced step plan.
type Step struct {
	ID        uuid.UUID `db:"id" json:"id"`
	EpisodeID uuid.UUID `db:"episode_id" json:"episode_id"`
	Code      string    `db:"code" json:"code"`
	Label     string    `db:"label" json:"label"`
	// SourceLinkID points at the junction row the step was expanded
	// from; nil marks an ad-hoc step.
	SourceLinkID      *uuid.UUID   `db:"source_link_id" json:"source_link_id,omitempty"`
	Pool              pathway.Pool `db:"pool" json:"pool"`
	DurationMinutes   int          `db:"duration_minutes" json:"duration_minutes"`
	DefaultOffsetDays int          `db:"default_offset_days" json:"default_offset_days"`
	Status            string       `db:"status" json:"status"`
	// Seq is dense and globally ordered within the episode: always
	// exactly {0..n-1} after any mutation.
	Seq           int        `db:"seq" json:"seq"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	SkipReason    *string    `db:"skip_reason" json:"skip_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Bookable reports whether the step occupies the "next pending"
// position: pending and scheduled steps both count.
func (s *Step) Bookable() bool {
	return s.Status == StepPending || s.Status == StepScheduled
}

// Intent maps to the slot_intent table: the projector's belief that a
// step should be booked next for its pool.
type Intent struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	EpisodeID uuid.UUID    `db:"episode_id" json:"episode_id"`
	StepID    uuid.UUID    `db:"step_id" json:"step_id"`
	Pool      pathway.Pool `db:"pool" json:"pool"`
	State     string       `db:"state" json:"state"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}
