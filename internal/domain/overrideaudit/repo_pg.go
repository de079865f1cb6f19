package overrideaudit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO override_audit (id, episode_id, actor_id, justification, step_code, bypass)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		e.ID, e.EpisodeID, e.ActorID, e.Justification, e.StepCode, e.Bypass).Scan(&e.CreatedAt)
}

func (r *repoPG) ListByEpisode(ctx context.Context, episodeID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM override_audit WHERE episode_id = $1`, episodeID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, episode_id, actor_id, justification, step_code, bypass, created_at
		FROM override_audit WHERE episode_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, episodeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EpisodeID, &e.ActorID, &e.Justification,
			&e.StepCode, &e.Bypass, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, nil
}
