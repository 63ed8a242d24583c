package ports

import (
	"context"

	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

// Port: boundary for Destination persistence.
type DestinationRepository interface {
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.Destination, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Destination, error)
	Put(ctx context.Context, d *domain.Destination) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Count destinations across all plans sharing this rounded coordinate,
	// used for reference counting before cached edges are invalidated.
	CountByCoordinate(ctx context.Context, coord domain.Coordinates) (int, error)
	// Persist a new visiting order for the plan's destinations.
	UpdateOrder(ctx context.Context, planID uuid.UUID, orderedIDs []uuid.UUID) error
}

// Port: boundary for ScheduleEvent persistence.
type EventRepository interface {
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.ScheduleEvent, error)
	// Get returns (nil, nil) when the event does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.ScheduleEvent, error)
	Put(ctx context.Context, ev *domain.ScheduleEvent) error
}

// Port: boundary for the durable offline mutation queue.
type MutationQueueRepository interface {
	// Append a mutation preserving device-local order; assigns LocalID.
	Append(ctx context.Context, m *domain.PendingMutation) error
	// Pending mutations for a device in enqueue order.
	ListPending(ctx context.Context, deviceID string) ([]*domain.PendingMutation, error)
	MarkStatus(ctx context.Context, localID int64, status domain.MutationStatus) error
	// StatusByKey reports whether any mutation with the idempotency key has
	// already reached the given terminal status.
	StatusByKey(ctx context.Context, key uuid.UUID) (domain.MutationStatus, bool, error)
}
