package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trip-planner-service/internal/adapters/directions"
	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

// plannerDestRepo serves scripted destination lists so tests can race
// membership changes against an in-flight computation.
type plannerDestRepo struct {
	mu      sync.Mutex
	calls   int
	lists   func(call int) []*domain.Destination
	ordered []uuid.UUID
}

func (r *plannerDestRepo) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.Destination, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.mu.Unlock()
	return r.lists(call), nil
}

func (r *plannerDestRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Destination, error) {
	return nil, nil
}

func (r *plannerDestRepo) Put(ctx context.Context, d *domain.Destination) error { return nil }

func (r *plannerDestRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *plannerDestRepo) CountByCoordinate(ctx context.Context, coord domain.Coordinates) (int, error) {
	return 0, nil
}

func (r *plannerDestRepo) UpdateOrder(ctx context.Context, planID uuid.UUID, orderedIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ordered = orderedIDs
	return nil
}

func (r *plannerDestRepo) listCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Three stops on a line, served by the mock directions adapter through the
// full edge cache.
func plannerFixture() ([]*domain.Destination, EdgeSource) {
	d1 := dest(1, 10.00000, 10.0)
	d2 := dest(2, 10.00900, 10.0)
	d3 := dest(3, 10.01800, 10.0)

	var legs []directions.MockLeg
	for _, pair := range [][2]*domain.Destination{{d1, d2}, {d2, d3}} {
		legs = append(legs,
			directions.MockLeg{From: pair[0].Coords, To: pair[1].Coords, Meters: 1000, Seconds: 100},
			directions.MockLeg{From: pair[1].Coords, To: pair[0].Coords, Meters: 1000, Seconds: 100},
		)
	}
	legs = append(legs,
		directions.MockLeg{From: d1.Coords, To: d3.Coords, Meters: 2000, Seconds: 200},
		directions.MockLeg{From: d3.Coords, To: d1.Coords, Meters: 2000, Seconds: 200},
	)

	cache := NewEdgeCache(directions.NewMockDirectionsProvider(legs), nil, EdgeCacheConfig{})
	return []*domain.Destination{d1, d2, d3}, cache
}

func TestRecomputePersistsOptimizedOrder(t *testing.T) {
	stops, edges := plannerFixture()
	d1, d2, d3 := stops[0], stops[1], stops[2]

	repo := &plannerDestRepo{lists: func(int) []*domain.Destination {
		// Stored order is the worst one: the far stop first.
		return []*domain.Destination{d3, d1, d2}
	}}

	planner := NewPlanner(NewOptimizer(edges, OptimizerConfig{}), repo, time.Minute)

	seq, err := planner.Recompute(context.Background(), uuid.New(), domain.ModeDriving)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []uuid.UUID{d1.ID, d2.ID, d3.ID}
	for i, w := range want {
		if seq.Destinations[i].ID != w {
			t.Fatalf("position %d = %s, want %s", i, seq.Destinations[i].ID, w)
		}
	}
	if seq.TotalDistanceMeters != 2000 || seq.TotalDurationSeconds != 200 {
		t.Fatalf("totals = %dm %ds, want 2000m 200s", seq.TotalDistanceMeters, seq.TotalDurationSeconds)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.ordered) != 3 {
		t.Fatalf("persisted order has %d ids", len(repo.ordered))
	}
	for i, w := range want {
		if repo.ordered[i] != w {
			t.Fatalf("persisted position %d = %s, want %s", i, repo.ordered[i], w)
		}
	}
}

func TestRecomputeSurvivesProviderOutageForOneLeg(t *testing.T) {
	d1 := dest(1, 10.00000, 10.0)
	d2 := dest(2, 10.00900, 10.0)
	d3 := dest(3, 10.01800, 10.0)

	// The provider only knows the adjacent legs; the d1/d3 pair degrades to
	// the haversine fallback inside the cache.
	var legs []directions.MockLeg
	for _, pair := range [][2]*domain.Destination{{d1, d2}, {d2, d3}} {
		legs = append(legs,
			directions.MockLeg{From: pair[0].Coords, To: pair[1].Coords, Meters: 1000, Seconds: 100},
			directions.MockLeg{From: pair[1].Coords, To: pair[0].Coords, Meters: 1000, Seconds: 100},
		)
	}
	cache := NewEdgeCache(directions.NewMockDirectionsProvider(legs), nil, EdgeCacheConfig{})

	repo := &plannerDestRepo{lists: func(int) []*domain.Destination {
		return []*domain.Destination{d1, d2, d3}
	}}
	planner := NewPlanner(NewOptimizer(cache, OptimizerConfig{}), repo, time.Minute)

	seq, err := planner.Recompute(context.Background(), uuid.New(), domain.ModeDriving)
	if err != nil {
		t.Fatalf("a degraded edge must not fail the route: %v", err)
	}
	if len(seq.Destinations) != 3 || len(seq.Legs) != 2 {
		t.Fatalf("sequence = %d destinations %d legs, want 3 and 2", len(seq.Destinations), len(seq.Legs))
	}
	// The chosen order only crosses provider-served legs.
	if seq.TotalDistanceMeters != 2000 {
		t.Fatalf("total distance = %d, want 2000", seq.TotalDistanceMeters)
	}
}

func TestRecomputeStaleWhenMembershipKeepsChanging(t *testing.T) {
	stops, edges := plannerFixture()
	d1, d2, d3 := stops[0], stops[1], stops[2]

	// Every other list call sees a destination removed, so the post-compute
	// fingerprint check never matches.
	repo := &plannerDestRepo{lists: func(call int) []*domain.Destination {
		if call%2 == 1 {
			return []*domain.Destination{d1, d2, d3}
		}
		return []*domain.Destination{d1, d2}
	}}

	planner := NewPlanner(NewOptimizer(edges, OptimizerConfig{}), repo, time.Minute)

	_, err := planner.Recompute(context.Background(), uuid.New(), domain.ModeDriving)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale after the retry, got %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.ordered != nil {
		t.Fatalf("a stale result was persisted: %v", repo.ordered)
	}
}

func TestRecomputeRetriesAfterInvalidation(t *testing.T) {
	stops, edges := plannerFixture()
	d1, d2, d3 := stops[0], stops[1], stops[2]

	planID := uuid.New()
	var planner *Planner

	// The first list call races an invalidation against the computation.
	repo := &plannerDestRepo{}
	repo.lists = func(call int) []*domain.Destination {
		if call == 1 {
			planner.Invalidate(planID)
		}
		return []*domain.Destination{d1, d2, d3}
	}

	planner = NewPlanner(NewOptimizer(edges, OptimizerConfig{}), repo, time.Minute)

	seq, err := planner.Recompute(context.Background(), planID, domain.ModeDriving)
	if err != nil {
		t.Fatalf("retry against fresh state must succeed: %v", err)
	}
	if len(seq.Destinations) != 3 {
		t.Fatalf("sequence has %d destinations, want 3", len(seq.Destinations))
	}
	// Attempt one aborts at the generation check; attempt two lists twice.
	if got := repo.listCalls(); got != 3 {
		t.Fatalf("repository listed %d times, want 3", got)
	}
}
