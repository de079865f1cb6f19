package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const cols = `id, provider_id, start_time, duration_minutes, state, location, room, external_event_id, source, created_at, updated_at`

func scan(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	err := row.Scan(&s.ID, &s.ProviderID, &s.StartTime, &s.DurationMinutes, &s.State,
		&s.Location, &s.Room, &s.ExternalEventID, &s.Source, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *TimeSlot) error {
	s.ID = uuid.New()
	if s.State == "" {
		s.State = StateFree
	}
	if s.Source == "" {
		s.Source = SourceLocal
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO time_slot (id, provider_id, start_time, duration_minutes, state, location, room, external_event_id, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		s.ID, s.ProviderID, s.StartTime, s.DurationMinutes, s.State,
		s.Location, s.Room, s.ExternalEventID, s.Source).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM time_slot WHERE id = $1`, id))
}

func (r *repoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("slot: LockForUpdate requires a transaction")
	}
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM time_slot WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, s *TimeSlot) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE time_slot
		SET provider_id=$2, start_time=$3, duration_minutes=$4, state=$5,
		    location=$6, room=$7, external_event_id=$8, source=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.ProviderID, s.StartTime, s.DurationMinutes, s.State,
		s.Location, s.Room, s.ExternalEventID, s.Source).Scan(&s.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM time_slot WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*TimeSlot, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.FreeOnly {
		where = append(where, "state = 'free'")
	}
	if f.FutureOnly {
		where = append(where, "start_time > NOW()")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM time_slot WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM time_slot WHERE %s ORDER BY start_time ASC LIMIT $%d OFFSET $%d`,
		cols, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TimeSlot
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}
