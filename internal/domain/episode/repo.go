package episode

import (
	"context"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
)

type Repository interface {
	Create(ctx context.Context, e *Episode) error
	GetByID(ctx context.Context, id uuid.UUID) (*Episode, error)
	// LockForUpdate loads the episode row under SELECT ... FOR UPDATE.
	// Callers must hold a transaction; the episode lock is always taken
	// before any slot lock.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Episode, error)
	Update(ctx context.Context, e *Episode) error
	// UpdateIf applies the update only when the stored snapshot_version
	// still matches expected; bumps the version on success.
	UpdateIf(ctx context.Context, e *Episode, expected int) (bool, error)
	List(ctx context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Episode, int, error)
}

type LinkRepository interface {
	Create(ctx context.Context, l *PathwayLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*PathwayLink, error)
	// ListByEpisode returns links ordered by ordinal ascending.
	ListByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*PathwayLink, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Resequence rewrites ordinals to 0..n-1 in the given id order.
	Resequence(ctx context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error
}

type StepRepository interface {
	Create(ctx context.Context, st *Step) error
	GetByID(ctx context.Context, id uuid.UUID) (*Step, error)
	// ListByEpisode returns steps ordered by seq ascending.
	ListByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*Step, error)
	Update(ctx context.Context, st *Step) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Resequence rewrites seq to 0..n-1 in the given id order.
	Resequence(ctx context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error
	// DeleteBySourceLink removes every step expanded from the given
	// junction row and returns how many were removed.
	DeleteBySourceLink(ctx context.Context, linkID uuid.UUID) (int, error)
}

type IntentRepository interface {
	Create(ctx context.Context, in *Intent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Intent, error)
	// OpenByEpisode returns the open intents for the episode, at most
	// one per pool.
	OpenByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*Intent, error)
	OpenByEpisodeAndPool(ctx context.Context, episodeID uuid.UUID, pool pathway.Pool) (*Intent, error)
	Update(ctx context.Context, in *Intent) error
	// CancelOpenByEpisode marks every open intent cancelled and returns
	// how many were cancelled.
	CancelOpenByEpisode(ctx context.Context, episodeID uuid.UUID) (int, error)
}
