package directions

import (
	"context"
	"fmt"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/ports"
)

type MockLeg struct {
	From, To domain.Coordinates
	Meters   int
	Seconds  int
}

type MockDirectionsProvider struct {
	m map[string]ports.DirectionsResult
}

func NewMockDirectionsProvider(legs []MockLeg) *MockDirectionsProvider {
	m := make(map[string]ports.DirectionsResult, len(legs))
	for _, l := range legs {
		m[domain.CoordKey(l.From)+"|"+domain.CoordKey(l.To)] = ports.DirectionsResult{
			DistanceMeters:  l.Meters,
			DurationSeconds: l.Seconds,
		}
	}
	return &MockDirectionsProvider{m: m}
}

func (p *MockDirectionsProvider) Route(ctx context.Context, origin, dest domain.Coordinates, mode domain.TravelMode) (ports.DirectionsResult, error) {
	r, ok := p.m[domain.CoordKey(origin)+"|"+domain.CoordKey(dest)]
	if !ok {
		return ports.DirectionsResult{}, fmt.Errorf("missing leg %s -> %s", domain.CoordKey(origin), domain.CoordKey(dest))
	}
	return r, nil
}
