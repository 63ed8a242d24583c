package routing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/platform/obs"
	"trip-planner-service/internal/ports"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// ErrStale means the destination set changed while optimization was in flight
// and the computation was abandoned after its retry.
var ErrStale = errors.New("route computation superseded by a newer change")

// Planner runs route optimization as a cancellable computation bounded by a
// wall-clock budget. A result is applied only if the destination/anchor set it
// was computed against still matches current state at completion time; a stale
// result is discarded and the computation retried once against fresh state.
type Planner struct {
	optimizer    *Optimizer
	destinations ports.DestinationRepository
	budget       time.Duration

	gen atomic.Int64

	mu       sync.Mutex
	inFlight map[uuid.UUID]context.CancelFunc
}

func NewPlanner(optimizer *Optimizer, destinations ports.DestinationRepository, budget time.Duration) *Planner {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &Planner{
		optimizer:    optimizer,
		destinations: destinations,
		budget:       budget,
		inFlight:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// Invalidate records a membership or anchor change for the plan. Any in-flight
// computation for it is cancelled so no stale result can be applied.
func (p *Planner) Invalidate(planID uuid.UUID) {
	p.gen.Inc()

	p.mu.Lock()
	if cancel, ok := p.inFlight[planID]; ok {
		cancel()
		delete(p.inFlight, planID)
	}
	p.mu.Unlock()
}

// Recompute optimizes the plan's visiting order and persists it.
// Concurrent membership changes abandon the attempt; one retry runs against
// fresh state before giving up with ErrStale.
func (p *Planner) Recompute(ctx context.Context, planID uuid.UUID, mode domain.TravelMode) (_ *Sequence, err error) {
	defer obs.Time(ctx, "planner.Recompute")(&err)

	for attempt := 0; attempt < 2; attempt++ {
		seq, err := p.recomputeOnce(ctx, planID, mode)
		if err == nil {
			return seq, nil
		}
		if !errors.Is(err, ErrStale) && !errors.Is(err, context.Canceled) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrStale
}

func (p *Planner) recomputeOnce(ctx context.Context, planID uuid.UUID, mode domain.TravelMode) (*Sequence, error) {
	gen := p.gen.Load()

	dests, err := p.destinations.ListByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("recompute: list destinations: %w", err)
	}
	fp := fingerprint(dests, mode)

	runCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	p.mu.Lock()
	p.inFlight[planID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, planID)
		p.mu.Unlock()
	}()

	seq, err := p.optimizer.Optimize(runCtx, dests, mode)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrStale // cancelled by Invalidate or budget, not caller
		}
		return nil, err
	}

	if p.gen.Load() != gen {
		return nil, ErrStale
	}
	current, err := p.destinations.ListByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("recompute: re-list destinations: %w", err)
	}
	if fingerprint(current, mode) != fp {
		return nil, ErrStale
	}

	ids := make([]uuid.UUID, len(seq.Destinations))
	for i, d := range seq.Destinations {
		ids[i] = d.ID
	}
	if err := p.destinations.UpdateOrder(ctx, planID, ids); err != nil {
		return nil, fmt.Errorf("recompute: persist order: %w", err)
	}
	return seq, nil
}

// fingerprint identifies the inputs an optimization was computed against:
// sorted ids, rounded coordinates, anchor dates and travel mode.
func fingerprint(dests []*domain.Destination, mode domain.TravelMode) string {
	parts := make([]string, 0, len(dests)+1)
	for _, d := range dests {
		anchor := ""
		if d.Anchored() {
			anchor = d.AnchorInstant().UTC().Format(time.RFC3339)
		}
		parts = append(parts, d.ID.String()+":"+domain.CoordKey(d.Coords)+":"+anchor)
	}
	slices.Sort(parts)
	return string(mode) + ";" + strings.Join(parts, ";")
}
