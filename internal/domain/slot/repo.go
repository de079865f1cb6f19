package slot

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *TimeSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// LockForUpdate loads the slot row under SELECT ... FOR UPDATE.
	// Callers must hold a transaction and must already hold the episode
	// lock when one applies.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	Update(ctx context.Context, s *TimeSlot) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*TimeSlot, int, error)
}

// ListFilter narrows slot listings.
type ListFilter struct {
	ProviderID *uuid.UUID
	FreeOnly   bool
	FutureOnly bool
}
