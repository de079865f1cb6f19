package slot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
)

type Service struct {
	slots Repository
}

func NewService(slots Repository) *Service {
	return &Service{slots: slots}
}

// Publish creates a free slot. The start must be strictly in the
// future; past capacity is never offered.
func (s *Service) Publish(ctx context.Context, sl *TimeSlot) error {
	if sl.ProviderID == uuid.Nil {
		return apperr.Validation("provider_id is required")
	}
	if !sl.StartTime.After(time.Now()) {
		return apperr.Validation("start_time must be in the future")
	}
	if sl.DurationMinutes <= 0 {
		return apperr.Validation("duration must be positive")
	}
	if sl.Source == SourceExternal && (sl.ExternalEventID == nil || *sl.ExternalEventID == "") {
		return apperr.Validation("external slots require external_event_id")
	}
	sl.State = StateFree
	return s.slots.Create(ctx, sl)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	sl, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("slot", id)
	}
	return sl, nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*TimeSlot, int, error) {
	return s.slots.List(ctx, f, limit, offset)
}

// Delete removes a slot from the pool. Booked slots must be cancelled
// through their appointment first.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	sl, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return apperr.NotFound("slot", id)
	}
	if !sl.IsFree() {
		return apperr.Conflict(apperr.CodeSlotConflict, "slot %s is booked", id)
	}
	return s.slots.Delete(ctx, id)
}
