package overrideaudit

import (
	"context"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
)

type Service struct {
	entries Repository
}

func NewService(entries Repository) *Service {
	return &Service{entries: entries}
}

// Record appends one entry. Bypass entries must carry a justification;
// the minimum length is the booking service's concern.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	if e.EpisodeID == uuid.Nil {
		return apperr.Validation("episode_id is required")
	}
	if e.ActorID == uuid.Nil {
		return apperr.Validation("actor_id is required")
	}
	if e.Bypass && e.Justification == "" {
		return apperr.Validation("justification is required for a bypass")
	}
	return s.entries.Create(ctx, e)
}

func (s *Service) ListByEpisode(ctx context.Context, episodeID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.entries.ListByEpisode(ctx, episodeID, limit, offset)
}
