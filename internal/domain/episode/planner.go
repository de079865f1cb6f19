package episode

import (
	"context"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
)

// MinStepDurationMinutes is the floor for ad-hoc free-text steps.
const MinStepDurationMinutes = 5

const defaultSkipReason = "skipped by provider"

func canTransition(from, to string) bool {
	switch from {
	case StepPending:
		return to == StepScheduled || to == StepSkipped
	case StepScheduled:
		return to == StepCompleted || to == StepSkipped || to == StepPending
	case StepSkipped:
		return to == StepPending
	default:
		return false
	}
}

// transitionStep moves one step through the state machine and
// reprojects, all inside a transaction holding the episode lock.
func (s *Service) transitionStep(ctx context.Context, episodeID, stepID uuid.UUID, to string, mutate func(*Step)) (*Step, error) {
	var out *Step
	err := s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.episodes.LockForUpdate(ctx, episodeID); err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		st, err := s.steps.GetByID(ctx, stepID)
		if err != nil || st.EpisodeID != episodeID {
			return apperr.NotFound("step", stepID)
		}
		if !canTransition(st.Status, to) {
			return apperr.Guard(apperr.CodeInvalidStepMove,
				"step cannot move from %s to %s", st.Status, to)
		}
		st.Status = to
		if mutate != nil {
			mutate(st)
		}
		if err := s.steps.Update(ctx, st); err != nil {
			return err
		}
		out = st
		return s.Reproject(ctx, episodeID)
	})
	return out, err
}

// Skip marks a pending or scheduled step skipped. An empty reason is
// recorded as a system note rather than rejected.
func (s *Service) Skip(ctx context.Context, episodeID, stepID uuid.UUID, reason string) (*Step, error) {
	if reason == "" {
		reason = defaultSkipReason
	}
	return s.transitionStep(ctx, episodeID, stepID, StepSkipped, func(st *Step) {
		st.SkipReason = &reason
	})
}

// Unskip returns a skipped step to pending.
func (s *Service) Unskip(ctx context.Context, episodeID, stepID uuid.UUID) (*Step, error) {
	return s.transitionStep(ctx, episodeID, stepID, StepPending, func(st *Step) {
		st.SkipReason = nil
	})
}

// MarkScheduled is called by the booking flow inside its own
// transaction; the booking service already holds the episode lock.
func (s *Service) MarkScheduled(ctx context.Context, stepID, appointmentID uuid.UUID) (*Step, error) {
	st, err := s.steps.GetByID(ctx, stepID)
	if err != nil {
		return nil, apperr.NotFound("step", stepID)
	}
	if !canTransition(st.Status, StepScheduled) {
		return nil, apperr.Guard(apperr.CodeInvalidStepMove,
			"step cannot move from %s to scheduled", st.Status)
	}
	st.Status = StepScheduled
	st.AppointmentID = &appointmentID
	return st, s.steps.Update(ctx, st)
}

// MarkPending reverts a scheduled step on appointment cancellation.
func (s *Service) MarkPending(ctx context.Context, stepID uuid.UUID) (*Step, error) {
	st, err := s.steps.GetByID(ctx, stepID)
	if err != nil {
		return nil, apperr.NotFound("step", stepID)
	}
	if !canTransition(st.Status, StepPending) {
		return nil, apperr.Guard(apperr.CodeInvalidStepMove,
			"step cannot move from %s to pending", st.Status)
	}
	st.Status = StepPending
	st.AppointmentID = nil
	return st, s.steps.Update(ctx, st)
}

// Complete finishes a scheduled step.
func (s *Service) Complete(ctx context.Context, episodeID, stepID uuid.UUID) (*Step, error) {
	return s.transitionStep(ctx, episodeID, stepID, StepCompleted, nil)
}

// DeleteStep hard-deletes a pending or skipped step and packs the
// sequence back to 0..n-1.
func (s *Service) DeleteStep(ctx context.Context, episodeID, stepID uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.episodes.LockForUpdate(ctx, episodeID); err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		st, err := s.steps.GetByID(ctx, stepID)
		if err != nil || st.EpisodeID != episodeID {
			return apperr.NotFound("step", stepID)
		}
		if st.Status != StepPending && st.Status != StepSkipped {
			return apperr.Guard(apperr.CodeInvalidStepMove,
				"only pending or skipped steps can be deleted, step is %s", st.Status)
		}
		if err := s.steps.Delete(ctx, stepID); err != nil {
			return err
		}
		steps, err := s.steps.ListByEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		ordered := make([]uuid.UUID, 0, len(steps))
		for _, rest := range steps {
			ordered = append(ordered, rest.ID)
		}
		if err := s.steps.Resequence(ctx, episodeID, ordered); err != nil {
			return err
		}
		return s.Reproject(ctx, episodeID)
	})
}

// Reorder rewrites the whole plan order. The submitted id list must be
// exactly the current step set, no additions, omissions or duplicates.
func (s *Service) Reorder(ctx context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.episodes.LockForUpdate(ctx, episodeID); err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		steps, err := s.steps.ListByEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		if len(orderedIDs) != len(steps) {
			return apperr.Validation("order must list all %d steps, got %d", len(steps), len(orderedIDs))
		}
		existing := make(map[uuid.UUID]bool, len(steps))
		for _, st := range steps {
			existing[st.ID] = true
		}
		seen := make(map[uuid.UUID]bool, len(orderedIDs))
		for _, id := range orderedIDs {
			if !existing[id] {
				return apperr.Validation("unknown step id %s in order", id)
			}
			if seen[id] {
				return apperr.Validation("duplicate step id %s in order", id)
			}
			seen[id] = true
		}
		if err := s.steps.Resequence(ctx, episodeID, orderedIDs); err != nil {
			return err
		}
		return s.Reproject(ctx, episodeID)
	})
}

// InsertCatalogStep appends a step by template code, resolved from the
// episode's linked pathways. Pool defaults to work when the template
// left it empty.
func (s *Service) InsertCatalogStep(ctx context.Context, episodeID uuid.UUID, code string) (*Step, error) {
	var out *Step
	err := s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.episodes.LockForUpdate(ctx, episodeID); err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		tpl, err := s.findTemplate(ctx, episodeID, code)
		if err != nil {
			return err
		}
		pool := tpl.Pool
		if pool == "" {
			pool = pathway.PoolWork
		}
		st := &Step{
			EpisodeID:         episodeID,
			Code:              tpl.Code,
			Label:             tpl.Label,
			Pool:              pool,
			DurationMinutes:   tpl.DurationMinutes,
			DefaultOffsetDays: tpl.DefaultOffsetDays,
			Status:            StepPending,
		}
		if err := s.appendStep(ctx, episodeID, st); err != nil {
			return err
		}
		out = st
		return s.Reproject(ctx, episodeID)
	})
	return out, err
}

// InsertFreeTextStep appends an ad-hoc step with a caller-supplied
// label. Durations below the floor are rejected.
func (s *Service) InsertFreeTextStep(ctx context.Context, episodeID uuid.UUID, label string, pool pathway.Pool, durationMinutes int) (*Step, error) {
	if label == "" {
		return nil, apperr.Validation("label is required")
	}
	if !pool.Valid() {
		return nil, apperr.Validation("invalid pool %q", pool)
	}
	if durationMinutes < MinStepDurationMinutes {
		return nil, apperr.Validation("duration must be at least %d minutes", MinStepDurationMinutes)
	}
	var out *Step
	err := s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.episodes.LockForUpdate(ctx, episodeID); err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		st := &Step{
			EpisodeID:       episodeID,
			Code:            "adhoc",
			Label:           label,
			Pool:            pool,
			DurationMinutes: durationMinutes,
			Status:          StepPending,
		}
		if err := s.appendStep(ctx, episodeID, st); err != nil {
			return err
		}
		out = st
		return s.Reproject(ctx, episodeID)
	})
	return out, err
}

func (s *Service) appendStep(ctx context.Context, episodeID uuid.UUID, st *Step) error {
	steps, err := s.steps.ListByEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	st.Seq = len(steps)
	return s.steps.Create(ctx, st)
}

func (s *Service) findTemplate(ctx context.Context, episodeID uuid.UUID, code string) (*pathway.StepTemplate, error) {
	links, err := s.links.ListByEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		p, err := s.pathways.GetByID(ctx, l.PathwayID)
		if err != nil {
			continue
		}
		if tpl := p.FindStep(code); tpl != nil {
			return tpl, nil
		}
	}
	return nil, apperr.Validation("unknown catalog step code %q", code)
}

// NextPending returns the lowest-seq step still occupying the "next"
// position: pending and scheduled both count, skipped and completed do
// not. Nil when the plan is exhausted.
func NextPending(steps []*Step) *Step {
	for _, st := range steps {
		if st.Bookable() {
			return st
		}
	}
	return nil
}
