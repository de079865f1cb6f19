package pathway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const cols = `id, name, reason_code, treatment_type_id, steps, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Pathway, error) {
	var p Pathway
	var steps []byte
	err := row.Scan(&p.ID, &p.Name, &p.ReasonCode, &p.TreatmentTypeID, &steps, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &p.Steps); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Pathway) error {
	p.ID = uuid.New()
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pathway (id, name, reason_code, treatment_type_id, steps)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.ReasonCode, p.TreatmentTypeID, steps).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pathway, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM pathway WHERE id = $1`, id))
}

func (r *repoPG) UpdateIf(ctx context.Context, p *Pathway, expected time.Time) (bool, error) {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return false, err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pathway SET name=$2, reason_code=$3, treatment_type_id=$4, steps=$5, updated_at=NOW()
		WHERE id = $1 AND date_trunc('second', updated_at) = date_trunc('second', $6::timestamptz)`,
		p.ID, p.Name, p.ReasonCode, p.TreatmentTypeID, steps, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM pathway WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Pathway, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pathway`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM pathway ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Pathway
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) ReferenceCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM episode_pathway WHERE pathway_id = $1)
		     + (SELECT COUNT(*) FROM episode WHERE pathway_id = $1)`, id).Scan(&count)
	return count, err
}
