package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Initialize the postgres schema.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createDestinationsQuery := `
	CREATE TABLE IF NOT EXISTS destinations (
		id UUID PRIMARY KEY,
		plan_id UUID NOT NULL,
		name TEXT NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		fixed_date TIMESTAMPTZ,
		fixed_time TIMESTAMPTZ,
		visit_duration_seconds BIGINT NOT NULL DEFAULT 3600,
		order_index INTEGER NOT NULL DEFAULT 0
	);
	`

	createEventsQuery := `
	CREATE TABLE IF NOT EXISTS schedule_events (
		id UUID PRIMARY KEY,
		plan_id UUID NOT NULL,
		destination_id UUID,
		title TEXT NOT NULL DEFAULT '',
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ NOT NULL,
		all_day BOOLEAN NOT NULL DEFAULT FALSE,
		version BIGINT NOT NULL DEFAULT 1,
		state TEXT NOT NULL,
		overlap_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		field_versions JSONB NOT NULL DEFAULT '{}',
		conflict JSONB
	);
	`

	createMutationsQuery := `
	CREATE TABLE IF NOT EXISTS pending_mutations (
		local_id BIGSERIAL PRIMARY KEY,
		idempotency_key UUID NOT NULL,
		device_id TEXT NOT NULL,
		plan_id UUID NOT NULL,
		kind TEXT NOT NULL,
		event_id UUID NOT NULL,
		patch JSONB NOT NULL DEFAULT '{}',
		client_timestamp TIMESTAMPTZ NOT NULL,
		base_version BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending'
	);
	`

	createIndexQueries := `
	CREATE INDEX IF NOT EXISTS idx_destinations_plan
		ON destinations(plan_id, order_index);
	CREATE INDEX IF NOT EXISTS idx_destinations_coords
		ON destinations(ROUND(lat::numeric, 5), ROUND(lon::numeric, 5));
	CREATE INDEX IF NOT EXISTS idx_schedule_events_plan
		ON schedule_events(plan_id, start_at);
	CREATE INDEX IF NOT EXISTS idx_pending_mutations_device
		ON pending_mutations(device_id, local_id) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_pending_mutations_key
		ON pending_mutations(idempotency_key);
	`

	statements := []string{
		createDestinationsQuery,
		createEventsQuery,
		createMutationsQuery,
		createIndexQueries,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type DestinationSeed struct {
	ID                   string   `json:"id"`
	PlanID               string   `json:"plan_id"`
	Name                 string   `json:"name"`
	Lat                  float64  `json:"lat"`
	Lon                  float64  `json:"lon"`
	Category             string   `json:"category"`
	FixedDate            *string  `json:"fixed_date"`
	VisitDurationMinutes int      `json:"visit_duration_minutes"`
	OrderIndex           int      `json:"order_index"`
}

// Populate the database with destination data from a JSON file.
func SeedFromJSON(db *sql.DB, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed destinations: read %q: %w", jsonPath, err)
	}

	var data []DestinationSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed destinations: parse json: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed destinations: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO destinations (
		id, plan_id, name, lat, lon, category,
		fixed_date, visit_duration_seconds, order_index
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE
	SET plan_id = EXCLUDED.plan_id,
		name = EXCLUDED.name,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		category = EXCLUDED.category,
		fixed_date = EXCLUDED.fixed_date,
		visit_duration_seconds = EXCLUDED.visit_duration_seconds,
		order_index = EXCLUDED.order_index;
	`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("seed destinations: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range data {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			return fmt.Errorf("seed destinations: invalid id at index %d: %w", i+1, err)
		}
		planID, err := uuid.Parse(item.PlanID)
		if err != nil {
			return fmt.Errorf("seed destinations: invalid plan_id at index %d: %w", i+1, err)
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return fmt.Errorf("seed destinations: item at index %d: name cannot be empty", i+1)
		}

		var fixedDate *time.Time
		if item.FixedDate != nil {
			t, err := time.Parse("2006-01-02", *item.FixedDate)
			if err != nil {
				return fmt.Errorf("seed destinations: invalid fixed_date at index %d: %w", i+1, err)
			}
			fixedDate = &t
		}

		visitSeconds := int64(item.VisitDurationMinutes) * 60
		if visitSeconds <= 0 {
			visitSeconds = 3600
		}

		if _, err := stmt.Exec(id, planID, name, item.Lat, item.Lon, item.Category,
			fixedDate, visitSeconds, item.OrderIndex); err != nil {
			return fmt.Errorf("seed destinations: insert id=%s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed destinations: commit tx: %w", err)
	}

	return nil
}
