package slot

import (
	"time"

	"github.com/google/uuid"
)

// Slot states. State is the single source of truth; the legacy status
// string is derived, never stored.
const (
	StateFree   = "free"
	StateBooked = "booked"
)

// Slot sources.
const (
	SourceLocal    = "local"
	SourceExternal = "external"
)

// TimeSlot maps to the time_slot table: one bookable unit of provider
// time, either published locally or mirrored from an external calendar.
type TimeSlot struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ProviderID      uuid.UUID `db:"provider_id" json:"provider_id"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	State           string    `db:"state" json:"state"`
	Location        *string   `db:"location" json:"location,omitempty"`
	Room            *string   `db:"room" json:"room,omitempty"`
	ExternalEventID *string   `db:"external_event_id" json:"external_event_id,omitempty"`
	Source          string    `db:"source" json:"source"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// LegacyStatus derives the old two-field status vocabulary from the
// canonical state, for clients still reading it.
func (s *TimeSlot) LegacyStatus() string {
	if s.State == StateBooked {
		return "booked"
	}
	return "available"
}

// IsFree reports whether the slot can accept a booking.
func (s *TimeSlot) IsFree() bool { return s.State == StateFree }

// EndTime is the exclusive end of the slot window.
func (s *TimeSlot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}
