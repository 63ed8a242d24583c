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

// PostgresMutationRepository is the durable backing of the offline sync
// queue. Rows survive process restarts until applied or rejected.
type PostgresMutationRepository struct {
	DB *sql.DB
}

func NewPostgresMutationRepository(db *sql.DB) *PostgresMutationRepository {
	return &PostgresMutationRepository{DB: db}
}

func (r *PostgresMutationRepository) Append(ctx context.Context, m *domain.PendingMutation) error {
	patch, err := json.Marshal(m.Patch)
	if err != nil {
		return fmt.Errorf("append mutation: encode patch: %w", err)
	}

	q := `
	INSERT INTO pending_mutations (
		idempotency_key, device_id, plan_id, kind, event_id,
		patch, client_timestamp, base_version, status
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING local_id;
	`

	err = r.DB.QueryRowContext(ctx, q,
		m.IdempotencyKey, m.DeviceID, m.PlanID, string(m.Kind), m.EventID,
		patch, m.ClientTimestamp, m.BaseVersion, string(m.Status),
	).Scan(&m.LocalID)
	if err != nil {
		return fmt.Errorf("append mutation key=%s: %w", m.IdempotencyKey, err)
	}
	return nil
}

func (r *PostgresMutationRepository) ListPending(ctx context.Context, deviceID string) ([]*domain.PendingMutation, error) {
	q := `
	SELECT local_id, idempotency_key, device_id, plan_id, kind, event_id,
	       patch, client_timestamp, base_version, status
	FROM pending_mutations
	WHERE device_id = $1 AND status = 'pending'
	ORDER BY local_id;
	`

	rows, err := r.DB.QueryContext(ctx, q, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list pending mutations: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.PendingMutation
	for rows.Next() {
		var (
			m      domain.PendingMutation
			kind   string
			status string
			patch  []byte
		)
		if err := rows.Scan(
			&m.LocalID, &m.IdempotencyKey, &m.DeviceID, &m.PlanID, &kind, &m.EventID,
			&patch, &m.ClientTimestamp, &m.BaseVersion, &status,
		); err != nil {
			return nil, fmt.Errorf("list pending mutations: scan: %w", err)
		}
		m.Kind = domain.MutationKind(kind)
		m.Status = domain.MutationStatus(status)
		if len(patch) > 0 {
			if err := json.Unmarshal(patch, &m.Patch); err != nil {
				return nil, fmt.Errorf("list pending mutations: decode patch: %w", err)
			}
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending mutations: row iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresMutationRepository) MarkStatus(ctx context.Context, localID int64, status domain.MutationStatus) error {
	q := `UPDATE pending_mutations SET status = $1 WHERE local_id = $2;`
	if _, err := r.DB.ExecContext(ctx, q, string(status), localID); err != nil {
		return fmt.Errorf("mark mutation %d %s: %w", localID, status, err)
	}
	return nil
}

// StatusByKey reports the terminal status of any mutation sharing the
// idempotency key. Applied takes precedence over rejected so replays of an
// applied mutation never re-execute.
func (r *PostgresMutationRepository) StatusByKey(ctx context.Context, key uuid.UUID) (domain.MutationStatus, bool, error) {
	q := `
	SELECT status
	FROM pending_mutations
	WHERE idempotency_key = $1 AND status <> 'pending'
	ORDER BY CASE status WHEN 'applied' THEN 0 ELSE 1 END
	LIMIT 1;
	`

	var status string
	err := r.DB.QueryRowContext(ctx, q, key).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("status by key %s: %w", key, err)
	}
	return domain.MutationStatus(status), true, nil
}
