package episode

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/db"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/events"
)

type Service struct {
	episodes Repository
	links    LinkRepository
	steps    StepRepository
	intents  IntentRepository
	pathways pathway.Repository
	tx       db.TxRunner
	events   *events.Dispatcher
	logger   zerolog.Logger
}

func NewService(
	episodes Repository,
	links LinkRepository,
	steps StepRepository,
	intents IntentRepository,
	pathways pathway.Repository,
	tx db.TxRunner,
	dispatcher *events.Dispatcher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		episodes: episodes,
		links:    links,
		steps:    steps,
		intents:  intents,
		pathways: pathways,
		tx:       tx,
		events:   dispatcher,
		logger:   logger,
	}
}

func (s *Service) publish(eventType string, payload map[string]interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

func (s *Service) Open(ctx context.Context, e *Episode) error {
	if e.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if e.Reason == "" {
		return apperr.Validation("reason is required")
	}
	if err := s.episodes.Create(ctx, e); err != nil {
		return err
	}
	s.publish(events.SchedulingEvent, map[string]interface{}{
		"action":     "episode.opened",
		"episode_id": e.ID.String(),
		"patient_id": e.PatientID.String(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Episode, error) {
	e, err := s.episodes.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("episode", id)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Episode, int, error) {
	return s.episodes.List(ctx, patientID, status, limit, offset)
}

// UpdateMeta edits episode metadata under the snapshot-version
// optimistic check. Stale edits return a conflict with the live record.
func (s *Service) UpdateMeta(ctx context.Context, id uuid.UUID, reason string, expectedVersion int) (*Episode, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsOpen() {
		return nil, apperr.Guard(apperr.CodeEpisodeClosed, "episode %s is closed", id)
	}
	if reason != "" {
		e.Reason = reason
	}
	ok, err := s.episodes.UpdateIf(ctx, e, expectedVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, gerr := s.episodes.GetByID(ctx, id)
		if gerr != nil {
			return nil, apperr.NotFound("episode", id)
		}
		return nil, apperr.Conflict(apperr.CodeStaleVersion,
			"episode was modified, expected snapshot version %d", expectedVersion).
			WithCurrent(current)
	}
	return s.episodes.GetByID(ctx, id)
}

// AssignProvider sets or clears the assigned provider and reprojects
// intents in the same transaction: projection only exists while a
// provider is assigned.
func (s *Service) AssignProvider(ctx context.Context, id uuid.UUID, providerID *uuid.UUID) (*Episode, error) {
	var out *Episode
	err := s.tx(ctx, func(ctx context.Context) error {
		e, err := s.episodes.LockForUpdate(ctx, id)
		if err != nil {
			return apperr.NotFound("episode", id)
		}
		if !e.IsOpen() {
			return apperr.Guard(apperr.CodeEpisodeClosed, "episode %s is closed", id)
		}
		e.ProviderID = providerID
		if err := s.episodes.Update(ctx, e); err != nil {
			return err
		}
		if err := s.Reproject(ctx, id); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// Close terminally closes the episode and cancels every open intent.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (*Episode, error) {
	var out *Episode
	err := s.tx(ctx, func(ctx context.Context) error {
		e, err := s.episodes.LockForUpdate(ctx, id)
		if err != nil {
			return apperr.NotFound("episode", id)
		}
		if !e.IsOpen() {
			return apperr.Guard(apperr.CodeEpisodeClosed, "episode %s is already closed", id)
		}
		e.Status = StatusClosed
		e.StageVersion++
		if err := s.episodes.Update(ctx, e); err != nil {
			return err
		}
		if _, err := s.intents.CancelOpenByEpisode(ctx, id); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(events.SchedulingEvent, map[string]interface{}{
		"action":     "episode.closed",
		"episode_id": id.String(),
	})
	return out, nil
}

// AddPathway links a catalog pathway to the episode and expands its
// step templates into the plan, all in one transaction.
func (s *Service) AddPathway(ctx context.Context, episodeID, pathwayID uuid.UUID) error {
	err := s.tx(ctx, func(ctx context.Context) error {
		e, err := s.episodes.LockForUpdate(ctx, episodeID)
		if err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		if !e.IsOpen() {
			return apperr.Guard(apperr.CodeEpisodeClosed, "episode %s is closed", episodeID)
		}
		p, err := s.pathways.GetByID(ctx, pathwayID)
		if err != nil {
			return apperr.NotFound("pathway", pathwayID)
		}

		links, err := s.links.ListByEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		for _, l := range links {
			if l.PathwayID == pathwayID {
				return apperr.Conflict(apperr.CodeAlreadyLinked,
					"pathway %s is already linked to episode %s", pathwayID, episodeID)
			}
		}

		link := &PathwayLink{
			EpisodeID: episodeID,
			PathwayID: pathwayID,
			Ordinal:   len(links),
		}
		if err := s.links.Create(ctx, link); err != nil {
			return err
		}

		// First link doubles as the legacy single-pathway pointer.
		if len(links) == 0 {
			e.PathwayID = &pathwayID
			if err := s.episodes.Update(ctx, e); err != nil {
				return err
			}
		}

		existing, err := s.steps.ListByEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		seq := len(existing)
		for _, tpl := range p.Steps {
			linkID := link.ID
			st := &Step{
				EpisodeID:         episodeID,
				Code:              tpl.Code,
				Label:             tpl.Label,
				SourceLinkID:      &linkID,
				Pool:              tpl.Pool,
				DurationMinutes:   tpl.DurationMinutes,
				DefaultOffsetDays: tpl.DefaultOffsetDays,
				Status:            StepPending,
				Seq:               seq,
			}
			if err := s.steps.Create(ctx, st); err != nil {
				return err
			}
			seq++
		}
		return s.Reproject(ctx, episodeID)
	})
	if err != nil {
		return err
	}
	s.publish(events.SchedulingEvent, map[string]interface{}{
		"action":     "episode.pathway_added",
		"episode_id": episodeID.String(),
		"pathway_id": pathwayID.String(),
	})
	return nil
}

// RemovePathway unlinks a pathway, deleting its sourced steps. Refused
// when any of those steps is scheduled or completed; nothing changes in
// that case.
func (s *Service) RemovePathway(ctx context.Context, episodeID, pathwayID uuid.UUID) error {
	err := s.tx(ctx, func(ctx context.Context) error {
		e, err := s.episodes.LockForUpdate(ctx, episodeID)
		if err != nil {
			return apperr.NotFound("episode", episodeID)
		}
		links, err := s.links.ListByEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		var target *PathwayLink
		for _, l := range links {
			if l.PathwayID == pathwayID {
				target = l
				break
			}
		}
		if target == nil {
			return apperr.NotFound("episode pathway link", pathwayID)
		}

		steps, err := s.steps.ListByEpisode(ctx, episodeID)
		if err != nil {
			return err
		}
		for _, st := range steps {
			if st.SourceLinkID != nil && *st.SourceLinkID == target.ID &&
				(st.Status == StepScheduled || st.Status == StepCompleted) {
				return apperr.Guard(apperr.CodeGuardViolation,
					"step %q is %s, unlink is blocked", st.Label, st.Status).
					WithDetail("step_id", st.ID)
			}
		}

		if _, err := s.steps.DeleteBySourceLink(ctx, target.ID); err != nil {
			return err
		}
		if err := s.links.Delete(ctx, target.ID); err != nil {
			return err
		}

		// Surviving steps keep their relative order, packed to 0..n-1.
		var keep []uuid.UUID
		for _, st := range steps {
			if st.SourceLinkID != nil && *st.SourceLinkID == target.ID {
				continue
			}
			keep = append(keep, st.ID)
		}
		if err := s.steps.Resequence(ctx, episodeID, keep); err != nil {
			return err
		}

		var remainingLinks []uuid.UUID
		var nextPathway *uuid.UUID
		for _, l := range links {
			if l.ID == target.ID {
				continue
			}
			remainingLinks = append(remainingLinks, l.ID)
			if nextPathway == nil {
				pid := l.PathwayID
				nextPathway = &pid
			}
		}
		if err := s.links.Resequence(ctx, episodeID, remainingLinks); err != nil {
			return err
		}
		e.PathwayID = nextPathway
		if err := s.episodes.Update(ctx, e); err != nil {
			return err
		}
		return s.Reproject(ctx, episodeID)
	})
	if err != nil {
		return err
	}
	s.publish(events.SchedulingEvent, map[string]interface{}{
		"action":     "episode.pathway_removed",
		"episode_id": episodeID.String(),
		"pathway_id": pathwayID.String(),
	})
	return nil
}

func (s *Service) Links(ctx context.Context, episodeID uuid.UUID) ([]*PathwayLink, error) {
	return s.links.ListByEpisode(ctx, episodeID)
}

func (s *Service) Steps(ctx context.Context, episodeID uuid.UUID) ([]*Step, error) {
	return s.steps.ListByEpisode(ctx, episodeID)
}

func (s *Service) OpenIntents(ctx context.Context, episodeID uuid.UUID) ([]*Intent, error) {
	return s.intents.OpenByEpisode(ctx, episodeID)
}

// HandleReprojectEvent adapts the service to the dispatcher for the
// post-booking reprojection hook.
func (s *Service) HandleReprojectEvent(ctx context.Context, ev events.Event) error {
	raw, ok := ev.Payload["episode_id"]
	if !ok {
		return nil
	}
	var id uuid.UUID
	switch v := raw.(type) {
	case uuid.UUID:
		id = v
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		id = parsed
	default:
		return nil
	}
	start := time.Now()
	err := s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.episodes.LockForUpdate(ctx, id); err != nil {
			return err
		}
		return s.Reproject(ctx, id)
	})
	s.logger.Debug().
		Str("episode_id", id.String()).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("reprojection event handled")
	return err
}
