package booking

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/episode"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/overrideaudit"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/slot"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/auth"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/db"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/events"
)

// Config carries the booking policy knobs.
type Config struct {
	// StrictOneHardNext makes the one-hard-next guard unconditional:
	// no override path, not even for administrators.
	StrictOneHardNext bool
	// OverrideMinJustification is the minimum justification length for
	// a guard override.
	OverrideMinJustification int
}

type Service struct {
	appts    Repository
	slots    slot.Repository
	episodes episode.Repository
	links    episode.LinkRepository
	steps    episode.StepRepository
	intents  episode.IntentRepository
	pathways pathway.Repository
	audit    overrideaudit.Repository
	tx       db.TxRunner
	events   *events.Dispatcher
	cfg      Config
	logger   zerolog.Logger
}

func NewService(
	appts Repository,
	slots slot.Repository,
	episodes episode.Repository,
	links episode.LinkRepository,
	steps episode.StepRepository,
	intents episode.IntentRepository,
	pathways pathway.Repository,
	audit overrideaudit.Repository,
	tx db.TxRunner,
	dispatcher *events.Dispatcher,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.OverrideMinJustification <= 0 {
		cfg.OverrideMinJustification = 10
	}
	return &Service{
		appts:    appts,
		slots:    slots,
		episodes: episodes,
		links:    links,
		steps:    steps,
		intents:  intents,
		pathways: pathways,
		audit:    audit,
		tx:       tx,
		events:   dispatcher,
		cfg:      cfg,
		logger:   logger,
	}
}

// BookRequest is the booking input. EpisodeID is optional for consult
// and control bookings; work-pool bookings against an episode run the
// full guard chain.
type BookRequest struct {
	PatientID         uuid.UUID    `json:"patient_id"`
	EpisodeID         *uuid.UUID   `json:"episode_id,omitempty"`
	SlotID            uuid.UUID    `json:"slot_id"`
	Pool              pathway.Pool `json:"pool"`
	StepCode          *string      `json:"step_code,omitempty"`
	StepSeq           *int         `json:"step_seq,omitempty"`
	IntentID          *uuid.UUID   `json:"intent_id,omitempty"`
	Justification     string       `json:"justification,omitempty"`
	Channel           string       `json:"channel,omitempty"`
	RequiresPrecommit bool         `json:"requires_precommit,omitempty"`
}

// BookResult is the committed appointment plus the slot snapshot taken
// inside the same transaction.
type BookResult struct {
	Appointment *Appointment   `json:"appointment"`
	Slot        *slot.TimeSlot `json:"slot"`
}

func (s *Service) publish(eventType string, payload map[string]interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

// Book runs the booking transaction. Lock order is episode first, then
// slot; every code path touching both must keep that order.
func (s *Service) Book(ctx context.Context, actor auth.Actor, req BookRequest) (*BookResult, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.SlotID == uuid.Nil {
		return nil, apperr.Validation("slot_id is required")
	}
	if !req.Pool.Valid() {
		return nil, apperr.Validation("invalid pool %q", req.Pool)
	}
	if req.Channel == "" {
		req.Channel = ChannelInternal
	}

	var result *BookResult
	intentConsumed := false

	err := s.tx(ctx, func(ctx context.Context) error {
		now := time.Now()

		var e *episode.Episode
		if req.EpisodeID != nil {
			var err error
			e, err = s.episodes.LockForUpdate(ctx, *req.EpisodeID)
			if err != nil {
				return apperr.NotFound("episode", *req.EpisodeID)
			}
		}

		if req.Pool == pathway.PoolWork && e != nil {
			if err := s.checkEpisodeBookable(ctx, e, actor); err != nil {
				return err
			}
		}

		precommit, tpl := s.derivePrecommit(ctx, e, req)

		usedOverride := false
		if req.Pool == pathway.PoolWork && e != nil {
			var err error
			usedOverride, err = s.enforceOneHardNext(ctx, actor, e, req, precommit, now)
			if err != nil {
				return err
			}
		}

		sl, err := s.slots.LockForUpdate(ctx, req.SlotID)
		if err != nil {
			return apperr.NotFound("slot", req.SlotID)
		}
		if !sl.IsFree() {
			return apperr.Conflict(apperr.CodeSlotConflict, "slot %s is already booked", sl.ID).
				WithCurrent(sl)
		}
		if !sl.StartTime.After(now) {
			return apperr.Validation("slot %s starts in the past", sl.ID)
		}

		var in *episode.Intent
		if req.IntentID != nil {
			in, err = s.intents.GetByID(ctx, *req.IntentID)
			if err != nil {
				return apperr.New(apperr.CodeIntentMismatch, http.StatusBadRequest,
					"intent %s not found", *req.IntentID)
			}
			if in.State != episode.IntentOpen {
				return apperr.New(apperr.CodeIntentMismatch, http.StatusBadRequest,
					"intent %s is %s, not open", in.ID, in.State)
			}
			if e == nil || in.EpisodeID != e.ID {
				return apperr.New(apperr.CodeIntentMismatch, http.StatusBadRequest,
					"intent %s does not belong to this episode", in.ID)
			}
		}

		a := &Appointment{
			PatientID:         req.PatientID,
			EpisodeID:         req.EpisodeID,
			SlotID:            sl.ID,
			ProviderID:        sl.ProviderID,
			Pool:              req.Pool,
			DurationMinutes:   sl.DurationMinutes,
			StartTime:         sl.StartTime,
			Status:            StatusActive,
			Channel:           req.Channel,
			RequiresPrecommit: precommit,
			UsedOverride:      usedOverride,
			StepCode:          req.StepCode,
			StepSeq:           req.StepSeq,
			IntentID:          req.IntentID,
		}
		if tpl != nil && req.StepCode == nil {
			code := tpl.Code
			a.StepCode = &code
		}
		if err := s.insertOrRebook(ctx, a); err != nil {
			return err
		}

		if in != nil {
			in.State = episode.IntentConverted
			if err := s.intents.Update(ctx, in); err != nil {
				return err
			}
			intentConsumed = true
		}

		if err := s.markStepScheduled(ctx, e, in, a); err != nil {
			return err
		}

		sl.State = slot.StateBooked
		if err := s.slots.Update(ctx, sl); err != nil {
			return err
		}

		result = &BookResult{Appointment: a, Slot: sl}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"appointment_id":   result.Appointment.ID.String(),
		"patient_id":       result.Appointment.PatientID.String(),
		"provider_id":      result.Appointment.ProviderID.String(),
		"slot_id":          result.Slot.ID.String(),
		"slot_source":      result.Slot.Source,
		"start_time":       result.Slot.StartTime,
		"duration_minutes": result.Slot.DurationMinutes,
		"pool":             string(result.Appointment.Pool),
	}
	if result.Slot.Location != nil {
		payload["location"] = *result.Slot.Location
	}
	if result.Slot.ExternalEventID != nil {
		payload["external_event_id"] = *result.Slot.ExternalEventID
	}
	if req.EpisodeID != nil {
		payload["episode_id"] = req.EpisodeID.String()
	}
	s.publish(events.AppointmentCreated, payload)
	if req.EpisodeID != nil && !intentConsumed {
		s.publish(events.EpisodeReproject, map[string]interface{}{"episode_id": req.EpisodeID.String()})
	}

	return result, nil
}

func (s *Service) checkEpisodeBookable(ctx context.Context, e *episode.Episode, actor auth.Actor) error {
	if !e.IsOpen() {
		return apperr.Guard(apperr.CodeEpisodeClosed, "episode %s is closed", e.ID)
	}
	if e.PathwayID == nil {
		links, err := s.links.ListByEpisode(ctx, e.ID)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			return apperr.Guard(apperr.CodeNoCarePathway,
				"episode %s has no linked care pathway", e.ID)
		}
	}
	if e.ProviderID != nil && *e.ProviderID != actor.ID && !actor.IsAdmin() {
		return apperr.New(apperr.CodeAssignedOnly, http.StatusForbidden,
			"episode %s is assigned to another provider", e.ID)
	}
	return nil
}

// derivePrecommit resolves the step template for the supplied step code
// across every linked pathway; a template marked requires_precommit
// forces the flag on regardless of the caller's input.
func (s *Service) derivePrecommit(ctx context.Context, e *episode.Episode, req BookRequest) (bool, *pathway.StepTemplate) {
	precommit := req.RequiresPrecommit
	if e == nil || req.StepCode == nil {
		return precommit, nil
	}
	links, err := s.links.ListByEpisode(ctx, e.ID)
	if err != nil {
		return precommit, nil
	}
	for _, l := range links {
		p, err := s.pathways.GetByID(ctx, l.PathwayID)
		if err != nil {
			continue
		}
		if tpl := p.FindStep(*req.StepCode); tpl != nil {
			if tpl.RequiresPrecommit {
				precommit = true
			}
			return precommit, tpl
		}
	}
	return precommit, nil
}

// enforceOneHardNext applies the core scheduling invariant: at most one
// active future work appointment per episode. Precommit bookings are
// exempt but still leave a trace in the audit log. Returns whether an
// override was consumed.
func (s *Service) enforceOneHardNext(ctx context.Context, actor auth.Actor, e *episode.Episode, req BookRequest, precommit bool, now time.Time) (bool, error) {
	if precommit {
		entry := &overrideaudit.Entry{
			EpisodeID:     e.ID,
			ActorID:       actor.ID,
			Justification: "precommit booking",
			StepCode:      req.StepCode,
			Bypass:        false,
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			return false, err
		}
		return false, nil
	}

	count, err := s.appts.CountActiveFutureWork(ctx, e.ID, now)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	violation := apperr.Conflict(apperr.CodeOneHardNext,
		"episode %s already has an active future work appointment", e.ID).
		WithDetail("active_count", count)

	if s.cfg.StrictOneHardNext {
		return false, violation
	}

	justification := strings.TrimSpace(req.Justification)
	if auth.CanOverrideOneHardNext(actor) && len(justification) >= s.cfg.OverrideMinJustification {
		entry := &overrideaudit.Entry{
			EpisodeID:     e.ID,
			ActorID:       actor.ID,
			Justification: justification,
			StepCode:      req.StepCode,
			Bypass:        true,
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			return false, err
		}
		s.logger.Warn().
			Str("episode_id", e.ID.String()).
			Str("actor_id", actor.ID.String()).
			Msg("one-hard-next guard overridden")
		return true, nil
	}

	return false, violation.WithHint(fmt.Sprintf(
		"admins, surgeons and prosthodontists may override with a justification of at least %d characters",
		s.cfg.OverrideMinJustification))
}

// insertOrRebook creates the appointment row, or when a cancelled row
// already holds the slot's unique constraint, rewrites that row in
// place so the slot keeps a single appointment id across rebookings.
func (s *Service) insertOrRebook(ctx context.Context, a *Appointment) error {
	existing, err := s.appts.GetBySlot(ctx, a.SlotID)
	if err != nil {
		return s.appts.Create(ctx, a)
	}
	if !existing.IsCancelled() {
		return apperr.Conflict(apperr.CodeSlotConflict,
			"slot %s already has a %s appointment", a.SlotID, existing.Status).
			WithCurrent(existing)
	}
	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	a.CalendarEventID = nil
	a.ApprovedBy = nil
	a.ApprovedAt = nil
	a.ArrivedLate = false
	a.NoShowRisk = nil
	a.HoldExpiresAt = nil
	return s.appts.Update(ctx, a)
}

// markStepScheduled links the booked step, resolved from the consumed
// intent or the step code, and moves it pending -> scheduled.
func (s *Service) markStepScheduled(ctx context.Context, e *episode.Episode, in *episode.Intent, a *Appointment) error {
	if e == nil {
		return nil
	}
	var st *episode.Step
	if in != nil {
		loaded, err := s.steps.GetByID(ctx, in.StepID)
		if err != nil {
			return err
		}
		st = loaded
	} else if a.StepCode != nil {
		steps, err := s.steps.ListByEpisode(ctx, e.ID)
		if err != nil {
			return err
		}
		for _, cand := range steps {
			if cand.Code == *a.StepCode && cand.Status == episode.StepPending {
				st = cand
				break
			}
		}
	}
	if st == nil || st.Status != episode.StepPending {
		return nil
	}
	st.Status = episode.StepScheduled
	st.AppointmentID = &a.ID
	if err := s.steps.Update(ctx, st); err != nil {
		return err
	}
	seq := st.Seq
	a.StepSeq = &seq
	if a.StepCode == nil {
		code := st.Code
		a.StepCode = &code
	}
	return s.appts.Update(ctx, a)
}

// Cancel releases an appointment: slot back to free, linked step back
// to pending, intent of record cancelled. by is "patient" or "doctor".
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, by string) (*Appointment, error) {
	var status string
	switch by {
	case "patient":
		status = StatusCancelledByPatient
	case "doctor", "":
		status = StatusCancelledByDoctor
	default:
		return nil, apperr.Validation("unknown cancellation origin %q", by)
	}

	var cancelled *Appointment
	var freedSlot *slot.TimeSlot

	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, appointmentID)
		if err != nil {
			return apperr.NotFound("appointment", appointmentID)
		}
		if !a.IsActive() {
			return apperr.Conflict(apperr.CodeConflict,
				"appointment %s is %s, not active", a.ID, a.Status)
		}

		// Same lock order as booking: episode first, then slot.
		if a.EpisodeID != nil {
			if _, err := s.episodes.LockForUpdate(ctx, *a.EpisodeID); err != nil {
				return apperr.NotFound("episode", *a.EpisodeID)
			}
		}
		sl, err := s.slots.LockForUpdate(ctx, a.SlotID)
		if err != nil {
			return apperr.NotFound("slot", a.SlotID)
		}

		a.Status = status
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}

		sl.State = slot.StateFree
		if err := s.slots.Update(ctx, sl); err != nil {
			return err
		}

		if a.EpisodeID != nil {
			if err := s.revertStep(ctx, *a.EpisodeID, a.ID); err != nil {
				return err
			}
		}
		if a.IntentID != nil {
			if in, err := s.intents.GetByID(ctx, *a.IntentID); err == nil && in.State == episode.IntentConverted {
				in.State = episode.IntentCancelled
				if err := s.intents.Update(ctx, in); err != nil {
					return err
				}
			}
		}

		cancelled = a
		freedSlot = sl
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"appointment_id":   cancelled.ID.String(),
		"patient_id":       cancelled.PatientID.String(),
		"provider_id":      cancelled.ProviderID.String(),
		"slot_id":          freedSlot.ID.String(),
		"slot_source":      freedSlot.Source,
		"start_time":       freedSlot.StartTime,
		"duration_minutes": freedSlot.DurationMinutes,
		"cancelled_by":     by,
	}
	if cancelled.CalendarEventID != nil {
		payload["calendar_event_id"] = *cancelled.CalendarEventID
	}
	if freedSlot.ExternalEventID != nil {
		payload["external_event_id"] = *freedSlot.ExternalEventID
	}
	s.publish(events.AppointmentCancelled, payload)
	if cancelled.EpisodeID != nil {
		s.publish(events.EpisodeReproject, map[string]interface{}{"episode_id": cancelled.EpisodeID.String()})
	}
	return cancelled, nil
}

func (s *Service) revertStep(ctx context.Context, episodeID, appointmentID uuid.UUID) error {
	steps, err := s.steps.ListByEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if st.AppointmentID != nil && *st.AppointmentID == appointmentID && st.Status == episode.StepScheduled {
			st.Status = episode.StepPending
			st.AppointmentID = nil
			return s.steps.Update(ctx, st)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("appointment", id)
	}
	return a, nil
}

func (s *Service) ListByEpisode(ctx context.Context, episodeID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByEpisode(ctx, episodeID, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByPatient(ctx, patientID, limit, offset)
}
