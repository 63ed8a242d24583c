package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

// PostgresDestinationRepository persists Destination entities.
type PostgresDestinationRepository struct {
	DB *sql.DB
}

func NewPostgresDestinationRepository(db *sql.DB) *PostgresDestinationRepository {
	return &PostgresDestinationRepository{DB: db}
}

const destinationColumns = `
	id, plan_id, name, lat, lon, category,
	fixed_date, fixed_time, visit_duration_seconds, order_index`

func (r *PostgresDestinationRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.Destination, error) {
	q := `SELECT` + destinationColumns + `
	FROM destinations
	WHERE plan_id = $1
	ORDER BY order_index, id;`

	rows, err := r.DB.QueryContext(ctx, q, planID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("list destinations: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list destinations: row iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresDestinationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Destination, error) {
	q := `SELECT` + destinationColumns + `
	FROM destinations
	WHERE id = $1;`

	d, err := scanDestination(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	return d, nil
}

func (r *PostgresDestinationRepository) Put(ctx context.Context, d *domain.Destination) error {
	q := `
	INSERT INTO destinations (` + destinationColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE
	SET plan_id = EXCLUDED.plan_id,
		name = EXCLUDED.name,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		category = EXCLUDED.category,
		fixed_date = EXCLUDED.fixed_date,
		fixed_time = EXCLUDED.fixed_time,
		visit_duration_seconds = EXCLUDED.visit_duration_seconds,
		order_index = EXCLUDED.order_index;
	`

	_, err := r.DB.ExecContext(ctx, q,
		d.ID, d.PlanID, d.Name, d.Coords.Lat, d.Coords.Lon, d.Category,
		d.FixedDate, d.FixedTime, int64(d.VisitDuration/time.Second), d.OrderIndex,
	)
	if err != nil {
		return fmt.Errorf("put destination %s: %w", d.ID, err)
	}
	return nil
}

func (r *PostgresDestinationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM destinations WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("delete destination %s: %w", id, err)
	}
	return nil
}

// CountByCoordinate counts stored destinations sharing the rounded coordinate
// across all plans, for edge-cache reference counting.
func (r *PostgresDestinationRepository) CountByCoordinate(ctx context.Context, coord domain.Coordinates) (int, error) {
	q := `
	SELECT COUNT(*)
	FROM destinations
	WHERE ROUND(lat::numeric, 5) = ROUND($1::numeric, 5)
	  AND ROUND(lon::numeric, 5) = ROUND($2::numeric, 5);
	`

	var n int
	if err := r.DB.QueryRowContext(ctx, q, coord.Lat, coord.Lon).Scan(&n); err != nil {
		return 0, fmt.Errorf("count destinations by coordinate: %w", err)
	}
	return n, nil
}

func (r *PostgresDestinationRepository) UpdateOrder(ctx context.Context, planID uuid.UUID, orderedIDs []uuid.UUID) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update order: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE destinations SET order_index = $1
	WHERE id = $2 AND plan_id = $3;
	`)
	if err != nil {
		return fmt.Errorf("update order: prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range orderedIDs {
		if _, err := stmt.ExecContext(ctx, i, id, planID); err != nil {
			return fmt.Errorf("update order: id=%s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update order: commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDestination(row rowScanner) (*domain.Destination, error) {
	var (
		d            domain.Destination
		visitSeconds int64
	)
	err := row.Scan(
		&d.ID, &d.PlanID, &d.Name, &d.Coords.Lat, &d.Coords.Lon, &d.Category,
		&d.FixedDate, &d.FixedTime, &visitSeconds, &d.OrderIndex,
	)
	if err != nil {
		return nil, err
	}
	d.VisitDuration = time.Duration(visitSeconds) * time.Second
	return &d, nil
}
