package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

// PostgresEventRepository persists ScheduleEvent entities, including the
// per-field version journal and any outstanding conflict as JSONB.
type PostgresEventRepository struct {
	DB *sql.DB
}

func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{DB: db}
}

const eventColumns = `
	id, plan_id, destination_id, title, start_at, end_at, all_day,
	version, state, overlap_allowed, field_versions, conflict`

func (r *PostgresEventRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.ScheduleEvent, error) {
	q := `SELECT` + eventColumns + `
	FROM schedule_events
	WHERE plan_id = $1
	ORDER BY start_at, id;`

	rows, err := r.DB.QueryContext(ctx, q, planID)
	if err != nil {
		return nil, fmt.Errorf("list events: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScheduleEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: row iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresEventRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduleEvent, error) {
	q := `SELECT` + eventColumns + `
	FROM schedule_events
	WHERE id = $1;`

	ev, err := scanEvent(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (r *PostgresEventRepository) Put(ctx context.Context, ev *domain.ScheduleEvent) error {
	fieldVersions, err := json.Marshal(ev.FieldVersions)
	if err != nil {
		return fmt.Errorf("put event %s: encode field versions: %w", ev.ID, err)
	}

	var conflict any
	if ev.Conflict != nil {
		raw, err := json.Marshal(ev.Conflict)
		if err != nil {
			return fmt.Errorf("put event %s: encode conflict: %w", ev.ID, err)
		}
		conflict = raw
	}

	q := `
	INSERT INTO schedule_events (` + eventColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE
	SET plan_id = EXCLUDED.plan_id,
		destination_id = EXCLUDED.destination_id,
		title = EXCLUDED.title,
		start_at = EXCLUDED.start_at,
		end_at = EXCLUDED.end_at,
		all_day = EXCLUDED.all_day,
		version = EXCLUDED.version,
		state = EXCLUDED.state,
		overlap_allowed = EXCLUDED.overlap_allowed,
		field_versions = EXCLUDED.field_versions,
		conflict = EXCLUDED.conflict;
	`

	_, err = r.DB.ExecContext(ctx, q,
		ev.ID, ev.PlanID, ev.DestinationID, ev.Title, ev.Start, ev.End, ev.AllDay,
		ev.Version, string(ev.State), ev.OverlapAllowed, fieldVersions, conflict,
	)
	if err != nil {
		return fmt.Errorf("put event %s: %w", ev.ID, err)
	}
	return nil
}

func scanEvent(row rowScanner) (*domain.ScheduleEvent, error) {
	var (
		ev            domain.ScheduleEvent
		state         string
		fieldVersions []byte
		conflict      []byte
	)
	err := row.Scan(
		&ev.ID, &ev.PlanID, &ev.DestinationID, &ev.Title, &ev.Start, &ev.End, &ev.AllDay,
		&ev.Version, &state, &ev.OverlapAllowed, &fieldVersions, &conflict,
	)
	if err != nil {
		return nil, err
	}

	ev.State = domain.EventState(state)
	if len(fieldVersions) > 0 {
		if err := json.Unmarshal(fieldVersions, &ev.FieldVersions); err != nil {
			return nil, fmt.Errorf("decode field versions: %w", err)
		}
	}
	if len(conflict) > 0 {
		ev.Conflict = &domain.ConflictInfo{}
		if err := json.Unmarshal(conflict, ev.Conflict); err != nil {
			return nil, fmt.Errorf("decode conflict: %w", err)
		}
	}
	return &ev, nil
}
