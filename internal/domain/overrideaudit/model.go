// Package overrideaudit records every bypass of the one-hard-next
// booking guard, plus non-bypass traces for precommitted steps. Entries
// are append-only.
package overrideaudit

import (
	"time"

	"github.com/google/uuid"
)

// Entry maps to the override_audit table.
type Entry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	EpisodeID uuid.UUID `db:"episode_id" json:"episode_id"`
	ActorID   uuid.UUID `db:"actor_id" json:"actor_id"`
	// Justification is the free-text reason the actor supplied; length
	// is enforced by the booking service for bypass entries.
	Justification string  `db:"justification" json:"justification"`
	StepCode      *string `db:"step_code" json:"step_code,omitempty"`
	// Bypass distinguishes a real guard override from the informational
	// trace written for precommitted bookings.
	Bypass    bool      `db:"bypass" json:"bypass"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
