package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
)

// Appointment statuses.
const (
	StatusActive             = "active"
	StatusCancelledByPatient = "cancelled_by_patient"
	StatusCancelledByDoctor  = "cancelled_by_doctor"
	StatusCompleted          = "completed"
	StatusNoShow             = "no_show"
)

// Booking channels.
const (
	ChannelWeb      = "web"
	ChannelPhone    = "phone"
	ChannelInternal = "internal"
)

// Appointment maps to the appointment table. SlotID carries a unique
// constraint; cancelling and rebooking the same slot reuses this row.
type Appointment struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	PatientID       uuid.UUID    `db:"patient_id" json:"patient_id"`
	EpisodeID       *uuid.UUID   `db:"episode_id" json:"episode_id,omitempty"`
	SlotID          uuid.UUID    `db:"slot_id" json:"slot_id"`
	ProviderID      uuid.UUID    `db:"provider_id" json:"provider_id"`
	Pool            pathway.Pool `db:"pool" json:"pool"`
	DurationMinutes int          `db:"duration_minutes" json:"duration_minutes"`
	StartTime       time.Time    `db:"start_time" json:"start_time"`
	Status          string       `db:"status" json:"status"`

	NoShowRisk           *float64   `db:"no_show_risk" json:"no_show_risk,omitempty"`
	RequiresConfirmation bool       `db:"requires_confirmation" json:"requires_confirmation"`
	HoldExpiresAt        *time.Time `db:"hold_expires_at" json:"hold_expires_at,omitempty"`
	Channel              string     `db:"channel" json:"channel"`

	RequiresPrecommit bool       `db:"requires_precommit" json:"requires_precommit"`
	UsedOverride      bool       `db:"used_override" json:"used_override"`
	StepCode          *string    `db:"step_code" json:"step_code,omitempty"`
	StepSeq           *int       `db:"step_seq" json:"step_seq,omitempty"`
	IntentID          *uuid.UUID `db:"intent_id" json:"intent_id,omitempty"`

	CalendarEventID *string    `db:"calendar_event_id" json:"calendar_event_id,omitempty"`
	ApprovedBy      *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ArrivedLate     bool       `db:"arrived_late" json:"arrived_late"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the appointment currently claims its slot.
func (a *Appointment) IsActive() bool { return a.Status == StatusActive }

// IsCancelled reports whether the appointment ended in a cancelled
// state, making its slot row reusable.
func (a *Appointment) IsCancelled() bool {
	return a.Status == StatusCancelledByPatient || a.Status == StatusCancelledByDoctor
}
