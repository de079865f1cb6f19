package pathway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
)

type Service struct {
	pathways Repository
}

func NewService(pathways Repository) *Service {
	return &Service{pathways: pathways}
}

func validate(p *Pathway) error {
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	hasReason := p.ReasonCode != nil && *p.ReasonCode != ""
	hasTreatment := p.TreatmentTypeID != nil && *p.TreatmentTypeID != uuid.Nil
	if hasReason == hasTreatment {
		return apperr.Validation("exactly one of reason_code or treatment_type_id must be set")
	}
	if len(p.Steps) == 0 {
		return apperr.Validation("at least one step template is required")
	}
	for i, st := range p.Steps {
		if st.Label == "" {
			return apperr.Validation("step %d: label is required", i)
		}
		if st.Code == "" {
			return apperr.Validation("step %d: code is required", i)
		}
		if !st.Pool.Valid() {
			return apperr.Validation("step %d: invalid pool %q", i, st.Pool)
		}
		if st.DurationMinutes <= 0 {
			return apperr.Validation("step %d: duration must be positive", i)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Pathway) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.pathways.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Pathway, error) {
	p, err := s.pathways.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("pathway", id)
	}
	return p, nil
}

// Update applies an optimistic edit: expected is the updated_at the
// caller last observed. A stale edit returns a conflict carrying the
// live record so the caller can re-diff and retry.
func (s *Service) Update(ctx context.Context, p *Pathway, expected time.Time) (*Pathway, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	ok, err := s.pathways.UpdateIf(ctx, p, expected)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.pathways.GetByID(ctx, p.ID)
		if err != nil {
			return nil, apperr.NotFound("pathway", p.ID)
		}
		return nil, apperr.Conflict(apperr.CodeStaleVersion,
			"pathway was modified since %s", expected.Format(time.RFC3339)).
			WithCurrent(current)
	}
	return s.pathways.GetByID(ctx, p.ID)
}

// Delete refuses while any episode still references the pathway,
// through the junction table or the legacy pointer.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pathways.GetByID(ctx, id); err != nil {
		return apperr.NotFound("pathway", id)
	}
	refs, err := s.pathways.ReferenceCount(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return apperr.Guard(apperr.CodePathwayInUse,
			"pathway is referenced by %d episode(s)", refs).
			WithDetail("reference_count", refs)
	}
	return s.pathways.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Pathway, int, error) {
	return s.pathways.List(ctx, limit, offset)
}
