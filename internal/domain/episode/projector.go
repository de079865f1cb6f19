package episode

import (
	"context"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
)

// Reproject recomputes the open slot intents for an episode: at most
// one per pool, pointing at the earliest pending step of that pool.
// Projection requires at least one linked pathway and an assigned
// provider; without both, every open intent is cancelled. Idempotent:
// an open intent already pointing at the right step is kept untouched.
//
// Callers run this inside the same transaction as the mutation that
// invalidated the projection, holding the episode lock.
func (s *Service) Reproject(ctx context.Context, episodeID uuid.UUID) error {
	e, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return err
	}

	open, err := s.intents.OpenByEpisode(ctx, episodeID)
	if err != nil {
		return err
	}

	eligible, err := s.projectionEligible(ctx, e)
	if err != nil {
		return err
	}
	if !eligible {
		for _, in := range open {
			in.State = IntentCancelled
			if err := s.intents.Update(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}

	steps, err := s.steps.ListByEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	want := make(map[pathway.Pool]uuid.UUID)
	for _, st := range steps {
		if st.Status != StepPending {
			continue
		}
		if _, ok := want[st.Pool]; !ok {
			want[st.Pool] = st.ID
		}
	}

	matched := make(map[pathway.Pool]bool)
	for _, in := range open {
		stepID, ok := want[in.Pool]
		if ok && !matched[in.Pool] && in.StepID == stepID {
			matched[in.Pool] = true
			continue
		}
		in.State = IntentCancelled
		if err := s.intents.Update(ctx, in); err != nil {
			return err
		}
	}
	for pool, stepID := range want {
		if matched[pool] {
			continue
		}
		in := &Intent{EpisodeID: episodeID, StepID: stepID, Pool: pool}
		if err := s.intents.Create(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) projectionEligible(ctx context.Context, e *Episode) (bool, error) {
	if !e.IsOpen() || e.ProviderID == nil {
		return false, nil
	}
	if e.PathwayID != nil {
		return true, nil
	}
	links, err := s.links.ListByEpisode(ctx, e.ID)
	if err != nil {
		return false, err
	}
	return len(links) > 0, nil
}
