package ports

import (
	"context"

	"trip-planner-service/internal/domain"
)

// Raw provider output for one origin -> destination leg.
type DirectionsResult struct {
	DistanceMeters  int
	DurationSeconds int
	Path            []domain.Coordinates
}

// Contract for the external directions provider. Rate-limited and fallible;
// callers own retry, caching and fallback policy.
type DirectionsProvider interface {
	// Return travel metrics between two coordinates for a mode.
	Route(ctx context.Context, origin, dest domain.Coordinates, mode domain.TravelMode) (DirectionsResult, error)
}
