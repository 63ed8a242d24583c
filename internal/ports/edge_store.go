package ports

import (
	"context"
	"time"

	"trip-planner-service/internal/domain"
)

// EdgeStore is a shared, TTL-bound tier of the edge cache.
//
// Implementations must expire entries on their own after the ttl passed to
// PutMany and must support dropping every edge touching one coordinate.
type EdgeStore interface {
	// Fetch cached edges for the given keys; absent keys are simply missing
	// from the result map.
	GetMany(ctx context.Context, keys []string) (map[string]domain.RouteEdge, error)

	// Store edges under their keys with the given time-to-live.
	PutMany(ctx context.Context, edges map[string]domain.RouteEdge, ttl time.Duration) error

	// Drop every cached edge whose origin or destination rounds to the
	// given coordinate.
	DeleteByCoordinate(ctx context.Context, coord domain.Coordinates) error
}
