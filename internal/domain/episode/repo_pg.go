package episode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
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

const episodeCols = `id, patient_id, status, reason, provider_id, pathway_id, stage_version, snapshot_version, created_at, updated_at`

func scanEpisode(row pgx.Row) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.PatientID, &e.Status, &e.Reason, &e.ProviderID, &e.PathwayID,
		&e.StageVersion, &e.SnapshotVersion, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Episode) error {
	e.ID = uuid.New()
	e.Status = StatusOpen
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO episode (id, patient_id, status, reason, provider_id, pathway_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING stage_version, snapshot_version, created_at, updated_at`,
		e.ID, e.PatientID, e.Status, e.Reason, e.ProviderID, e.PathwayID).
		Scan(&e.StageVersion, &e.SnapshotVersion, &e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Episode, error) {
	return scanEpisode(r.conn(ctx).QueryRow(ctx, `SELECT `+episodeCols+` FROM episode WHERE id = $1`, id))
}

func (r *repoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*Episode, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("episode: LockForUpdate requires a transaction")
	}
	return scanEpisode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+episodeCols+` FROM episode WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, e *Episode) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE episode
		SET status=$2, reason=$3, provider_id=$4, pathway_id=$5, stage_version=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.Status, e.Reason, e.ProviderID, e.PathwayID, e.StageVersion).Scan(&e.UpdatedAt)
}

func (r *repoPG) UpdateIf(ctx context.Context, e *Episode, expected int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE episode
		SET status=$2, reason=$3, provider_id=$4, pathway_id=$5,
		    snapshot_version = snapshot_version + 1, updated_at=NOW()
		WHERE id = $1 AND snapshot_version = $6`,
		e.ID, e.Status, e.Reason, e.ProviderID, e.PathwayID, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) List(ctx context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Episode, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if patientID != nil {
		args = append(args, *patientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM episode WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM episode WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		episodeCols, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}

type linkRepoPG struct{ pool *pgxpool.Pool }

func NewLinkRepoPG(pool *pgxpool.Pool) LinkRepository { return &linkRepoPG{pool: pool} }

func (r *linkRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *linkRepoPG) Create(ctx context.Context, l *PathwayLink) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO episode_pathway (id, episode_id, pathway_id, ordinal)
		VALUES ($1,$2,$3,$4)`, l.ID, l.EpisodeID, l.PathwayID, l.Ordinal)
	return err
}

func (r *linkRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PathwayLink, error) {
	var l PathwayLink
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, episode_id, pathway_id, ordinal FROM episode_pathway WHERE id = $1`, id).
		Scan(&l.ID, &l.EpisodeID, &l.PathwayID, &l.Ordinal)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *linkRepoPG) ListByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*PathwayLink, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, episode_id, pathway_id, ordinal
		FROM episode_pathway WHERE episode_id = $1 ORDER BY ordinal ASC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []*PathwayLink
	for rows.Next() {
		var l PathwayLink
		if err := rows.Scan(&l.ID, &l.EpisodeID, &l.PathwayID, &l.Ordinal); err != nil {
			return nil, err
		}
		links = append(links, &l)
	}
	return links, nil
}

func (r *linkRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM episode_pathway WHERE id = $1`, id)
	return err
}

func (r *linkRepoPG) Resequence(ctx context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error {
	for i, id := range orderedIDs {
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE episode_pathway SET ordinal = $3 WHERE id = $1 AND episode_id = $2`,
			id, episodeID, i); err != nil {
			return err
		}
	}
	return nil
}

type stepRepoPG struct{ pool *pgxpool.Pool }

func NewStepRepoPG(pool *pgxpool.Pool) StepRepository { return &stepRepoPG{pool: pool} }

func (r *stepRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const stepCols = `id, episode_id, code, label, source_link_id, pool, duration_minutes, default_offset_days, status, seq, appointment_id, skip_reason, created_at, updated_at`

func scanStep(row pgx.Row) (*Step, error) {
	var st Step
	err := row.Scan(&st.ID, &st.EpisodeID, &st.Code, &st.Label, &st.SourceLinkID, &st.Pool,
		&st.DurationMinutes, &st.DefaultOffsetDays, &st.Status, &st.Seq,
		&st.AppointmentID, &st.SkipReason, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *stepRepoPG) Create(ctx context.Context, st *Step) error {
	st.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO episode_step (id, episode_id, code, label, source_link_id, pool,
			duration_minutes, default_offset_days, status, seq)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		st.ID, st.EpisodeID, st.Code, st.Label, st.SourceLinkID, st.Pool,
		st.DurationMinutes, st.DefaultOffsetDays, st.Status, st.Seq).
		Scan(&st.CreatedAt, &st.UpdatedAt)
}

func (r *stepRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Step, error) {
	return scanStep(r.conn(ctx).QueryRow(ctx, `SELECT `+stepCols+` FROM episode_step WHERE id = $1`, id))
}

func (r *stepRepoPG) ListByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*Step, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+stepCols+` FROM episode_step WHERE episode_id = $1 ORDER BY seq ASC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []*Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func (r *stepRepoPG) Update(ctx context.Context, st *Step) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE episode_step
		SET code=$2, label=$3, pool=$4, duration_minutes=$5, default_offset_days=$6,
		    status=$7, seq=$8, appointment_id=$9, skip_reason=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		st.ID, st.Code, st.Label, st.Pool, st.DurationMinutes, st.DefaultOffsetDays,
		st.Status, st.Seq, st.AppointmentID, st.SkipReason).Scan(&st.UpdatedAt)
}

func (r *stepRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM episode_step WHERE id = $1`, id)
	return err
}

func (r *stepRepoPG) Resequence(ctx context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error {
	// Two passes avoid transient unique (episode_id, seq) collisions.
	for i, id := range orderedIDs {
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE episode_step SET seq = $3 WHERE id = $1 AND episode_id = $2`,
			id, episodeID, -(i + 1)); err != nil {
			return err
		}
	}
	for i, id := range orderedIDs {
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE episode_step SET seq = $3, updated_at = NOW() WHERE id = $1 AND episode_id = $2`,
			id, episodeID, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *stepRepoPG) DeleteBySourceLink(ctx context.Context, linkID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM episode_step WHERE source_link_id = $1`, linkID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type intentRepoPG struct{ pool *pgxpool.Pool }

func NewIntentRepoPG(pool *pgxpool.Pool) IntentRepository { return &intentRepoPG{pool: pool} }

func (r *intentRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const intentCols = `id, episode_id, step_id, pool, state, created_at, updated_at`

func scanIntent(row pgx.Row) (*Intent, error) {
	var in Intent
	err := row.Scan(&in.ID, &in.EpisodeID, &in.StepID, &in.Pool, &in.State, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *intentRepoPG) Create(ctx context.Context, in *Intent) error {
	in.ID = uuid.New()
	in.State = IntentOpen
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO slot_intent (id, episode_id, step_id, pool, state)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		in.ID, in.EpisodeID, in.StepID, in.Pool, in.State).Scan(&in.CreatedAt, &in.UpdatedAt)
}

func (r *intentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Intent, error) {
	return scanIntent(r.conn(ctx).QueryRow(ctx, `SELECT `+intentCols+` FROM slot_intent WHERE id = $1`, id))
}

func (r *intentRepoPG) OpenByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*Intent, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+intentCols+` FROM slot_intent WHERE episode_id = $1 AND state = 'open' ORDER BY pool ASC`,
		episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var intents []*Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}
	return intents, nil
}

func (r *intentRepoPG) OpenByEpisodeAndPool(ctx context.Context, episodeID uuid.UUID, pool pathway.Pool) (*Intent, error) {
	return scanIntent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+intentCols+` FROM slot_intent WHERE episode_id = $1 AND pool = $2 AND state = 'open'`,
		episodeID, pool))
}

func (r *intentRepoPG) Update(ctx context.Context, in *Intent) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE slot_intent SET step_id=$2, pool=$3, state=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		in.ID, in.StepID, in.Pool, in.State).Scan(&in.UpdatedAt)
}

func (r *intentRepoPG) CancelOpenByEpisode(ctx context.Context, episodeID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE slot_intent SET state = 'cancelled', updated_at = NOW()
		WHERE episode_id = $1 AND state = 'open'`, episodeID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
