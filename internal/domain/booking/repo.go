package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetBySlot returns the appointment row holding the slot's unique
	// constraint, regardless of status, or pgx.ErrNoRows.
	GetBySlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// CountActiveFutureWork counts the episode's active work-pool
	// appointments starting after now, excluding precommit ones.
	CountActiveFutureWork(ctx context.Context, episodeID uuid.UUID, now time.Time) (int, error)
	ListByEpisode(ctx context.Context, episodeID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}
