package booking

import (
	"context"
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

const cols = `id, patient_id, episode_id, slot_id, provider_id, pool, duration_minutes, start_time, status,
	no_show_risk, requires_confirmation, hold_expires_at, channel,
	requires_precommit, used_override, step_code, step_seq, intent_id,
	calendar_event_id, approved_by, approved_at, arrived_late, created_at, updated_at`

func scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.EpisodeID, &a.SlotID, &a.ProviderID, &a.Pool,
		&a.DurationMinutes, &a.StartTime, &a.Status,
		&a.NoShowRisk, &a.RequiresConfirmation, &a.HoldExpiresAt, &a.Channel,
		&a.RequiresPrecommit, &a.UsedOverride, &a.StepCode, &a.StepSeq, &a.IntentID,
		&a.CalendarEventID, &a.ApprovedBy, &a.ApprovedAt, &a.ArrivedLate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, episode_id, slot_id, provider_id, pool,
			duration_minutes, start_time, status, no_show_risk, requires_confirmation,
			hold_expires_at, channel, requires_precommit, used_override, step_code,
			step_seq, intent_id, calendar_event_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.EpisodeID, a.SlotID, a.ProviderID, a.Pool,
		a.DurationMinutes, a.StartTime, a.Status, a.NoShowRisk, a.RequiresConfirmation,
		a.HoldExpiresAt, a.Channel, a.RequiresPrecommit, a.UsedOverride, a.StepCode,
		a.StepSeq, a.IntentID, a.CalendarEventID).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) GetBySlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM appointment WHERE slot_id = $1`, slotID))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment
		SET patient_id=$2, episode_id=$3, provider_id=$4, pool=$5, duration_minutes=$6,
		    start_time=$7, status=$8, no_show_risk=$9, requires_confirmation=$10,
		    hold_expires_at=$11, channel=$12, requires_precommit=$13, used_override=$14,
		    step_code=$15, step_seq=$16, intent_id=$17, calendar_event_id=$18,
		    approved_by=$19, approved_at=$20, arrived_late=$21, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PatientID, a.EpisodeID, a.ProviderID, a.Pool, a.DurationMinutes,
		a.StartTime, a.Status, a.NoShowRisk, a.RequiresConfirmation,
		a.HoldExpiresAt, a.Channel, a.RequiresPrecommit, a.UsedOverride,
		a.StepCode, a.StepSeq, a.IntentID, a.CalendarEventID,
		a.ApprovedBy, a.ApprovedAt, a.ArrivedLate).Scan(&a.UpdatedAt)
}

func (r *repoPG) CountActiveFutureWork(ctx context.Context, episodeID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE episode_id = $1 AND pool = 'work' AND status = 'active'
		  AND start_time > $2 AND requires_precommit = false`,
		episodeID, now).Scan(&count)
	return count, err
}

func (r *repoPG) list(ctx context.Context, col string, key uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE `+col+` = $1`, key).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM appointment WHERE `+col+` = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		key, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) ListByEpisode(ctx context.Context, episodeID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "episode_id", episodeID, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}
