package pathway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Pathway) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pathway, error)
	// UpdateIf applies the update only when the stored updated_at still
	// matches expected (second precision); returns false on a stale
	// edit without touching the row.
	UpdateIf(ctx context.Context, p *Pathway, expected time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Pathway, int, error)
	// ReferenceCount counts episodes holding the pathway via the
	// junction table or the legacy pointer.
	ReferenceCount(ctx context.Context, id uuid.UUID) (int, error)
}
