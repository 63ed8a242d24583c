package routing

import (
	"context"
	"fmt"
	"slices"

	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

// Sequence is the output of route optimization: destinations in visiting
// order plus the travel legs connecting them.
type Sequence struct {
	Destinations         []*domain.Destination
	Legs                 []domain.RouteEdge // len(Destinations)-1 legs, in order
	TotalDistanceMeters  int
	TotalDurationSeconds int
}

type OptimizerConfig struct {
	// MaxDestinations caps the input size; larger plans are rejected.
	MaxDestinations int
	// MaxTwoOptPasses bounds the improvement phase per segment.
	MaxTwoOptPasses int
}

func (c OptimizerConfig) withDefaults() OptimizerConfig {
	if c.MaxDestinations <= 0 {
		c.MaxDestinations = 25
	}
	if c.MaxTwoOptPasses <= 0 {
		c.MaxTwoOptPasses = 8
	}
	return c
}

// Optimizer computes a near-optimal visiting order for a set of destinations.
//
// Anchored destinations (fixed date) are immovable checkpoints: they keep
// their chronological order and partition the rest into segments. Each
// segment is solved independently as an open path bounded by the anchors on
// either side, using nearest-neighbor construction followed by bounded 2-opt
// improvement. Ties break by ascending destination id at every choice point,
// so identical input yields an identical ordering.
type Optimizer struct {
	edges EdgeSource
	cfg   OptimizerConfig
}

func NewOptimizer(edges EdgeSource, cfg OptimizerConfig) *Optimizer {
	return &Optimizer{edges: edges, cfg: cfg.withDefaults()}
}

func (o *Optimizer) Optimize(ctx context.Context, dests []*domain.Destination, mode domain.TravelMode) (*Sequence, error) {
	n := len(dests)
	if n > o.cfg.MaxDestinations {
		return nil, &domain.CapacityError{Count: n, Max: o.cfg.MaxDestinations}
	}
	for _, d := range dests {
		if !d.Coords.Valid() {
			return nil, &domain.ValidationError{
				Field:  "destination " + d.ID.String(),
				Reason: "coordinates out of bounds",
			}
		}
	}

	// Fewer than two destinations: nothing to order.
	if n < 2 {
		return &Sequence{Destinations: slices.Clone(dests)}, nil
	}

	matrix, err := o.fetchMatrix(ctx, dests, mode)
	if err != nil {
		return nil, fmt.Errorf("optimize: fetch edges: %w", err)
	}

	anchors, segments := partition(dests)

	ordered := make([]*domain.Destination, 0, n)
	for i := 0; i <= len(anchors); i++ {
		var left, right *domain.Destination
		if i > 0 {
			left = anchors[i-1]
		}
		if i < len(anchors) {
			right = anchors[i]
		}

		seg, err := o.orderSegment(ctx, segments[i], left, right, matrix)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, seg...)
		if right != nil {
			ordered = append(ordered, right)
		}
	}

	// An unanchored plan must never come out worse than the order the user
	// already had.
	if len(anchors) == 0 {
		if matrix.pathCost(dests) < matrix.pathCost(ordered) {
			ordered = slices.Clone(dests)
		}
	}

	return matrix.sequence(ordered), nil
}

// partition splits destinations into chronologically sorted anchors and the
// free destinations of each segment. Segment i holds the free destinations
// visited before anchor i; segment len(anchors) holds those after the last.
// A free destination lands in the segment implied by its current position
// relative to the anchors.
func partition(dests []*domain.Destination) ([]*domain.Destination, [][]*domain.Destination) {
	var anchors []*domain.Destination
	for _, d := range dests {
		if d.Anchored() {
			anchors = append(anchors, d)
		}
	}
	slices.SortFunc(anchors, func(a, b *domain.Destination) int {
		ai, bi := a.AnchorInstant(), b.AnchorInstant()
		if ai.Before(bi) {
			return -1
		}
		if ai.After(bi) {
			return 1
		}
		return compareID(a.ID, b.ID)
	})

	chronoRank := make(map[uuid.UUID]int, len(anchors))
	for i, a := range anchors {
		chronoRank[a.ID] = i
	}

	segments := make([][]*domain.Destination, len(anchors)+1)
	seg := 0
	for _, d := range dests {
		if d.Anchored() {
			seg = chronoRank[d.ID] + 1
			continue
		}
		segments[seg] = append(segments[seg], d)
	}
	return anchors, segments
}

// orderSegment solves one open-path sub-problem bounded by the given anchors
// (either may be nil at the sequence ends).
func (o *Optimizer) orderSegment(ctx context.Context, free []*domain.Destination, left, right *domain.Destination, matrix *edgeMatrix) ([]*domain.Destination, error) {
	if len(free) < 2 {
		return free, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order := nearestNeighbor(free, left, right, matrix)
	return o.twoOpt(ctx, order, left, right, matrix)
}

// nearestNeighbor builds an initial order greedily. With a left bound it
// extends forward from it; with only a right bound it builds backward toward
// it; with no bounds it starts from the lowest-id destination.
func nearestNeighbor(free []*domain.Destination, left, right *domain.Destination, matrix *edgeMatrix) []*domain.Destination {
	remaining := slices.Clone(free)
	slices.SortFunc(remaining, func(a, b *domain.Destination) int { return compareID(a.ID, b.ID) })

	if left == nil && right != nil {
		// Build from the right anchor backward, then flip.
		order := make([]*domain.Destination, 0, len(remaining))
		cur := right
		for len(remaining) > 0 {
			best := pickNearest(remaining, func(d *domain.Destination) int {
				return matrix.dist(d, cur)
			})
			order = append(order, remaining[best])
			cur = remaining[best]
			remaining = slices.Delete(remaining, best, best+1)
		}
		slices.Reverse(order)
		return order
	}

	var cur *domain.Destination
	if left != nil {
		cur = left
	} else {
		cur = remaining[0] // lowest id seeds an unbounded segment
		order := []*domain.Destination{cur}
		remaining = remaining[1:]
		return appendGreedy(order, cur, remaining, matrix)
	}
	return appendGreedy(nil, cur, remaining, matrix)
}

func appendGreedy(order []*domain.Destination, cur *domain.Destination, remaining []*domain.Destination, matrix *edgeMatrix) []*domain.Destination {
	for len(remaining) > 0 {
		best := pickNearest(remaining, func(d *domain.Destination) int {
			return matrix.dist(cur, d)
		})
		order = append(order, remaining[best])
		cur = remaining[best]
		remaining = slices.Delete(remaining, best, best+1)
	}
	return order
}

// pickNearest returns the index of the candidate with minimal cost.
// Candidates are pre-sorted by id, so equal costs resolve to the smaller id.
func pickNearest(candidates []*domain.Destination, cost func(*domain.Destination) int) int {
	best := 0
	bestCost := cost(candidates[0])
	for i := 1; i < len(candidates); i++ {
		if c := cost(candidates[i]); c < bestCost {
			best = i
			bestCost = c
		}
	}
	return best
}

// twoOpt improves a segment order by reversing sub-runs while the total
// bounded-path distance strictly decreases, up to the configured pass cap.
// Only strict improvements are taken, keeping the result deterministic.
func (o *Optimizer) twoOpt(ctx context.Context, order []*domain.Destination, left, right *domain.Destination, matrix *edgeMatrix) ([]*domain.Destination, error) {
	cost := func(seq []*domain.Destination) int {
		total := 0
		if left != nil {
			total += matrix.dist(left, seq[0])
		}
		for i := 0; i+1 < len(seq); i++ {
			total += matrix.dist(seq[i], seq[i+1])
		}
		if right != nil {
			total += matrix.dist(seq[len(seq)-1], right)
		}
		return total
	}

	best := cost(order)
	for pass := 0; pass < o.cfg.MaxTwoOptPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		improved := false
		for i := 0; i < len(order)-1; i++ {
			for j := i + 1; j < len(order); j++ {
				reverseRange(order, i, j)
				if c := cost(order); c < best {
					best = c
					improved = true
				} else {
					reverseRange(order, i, j) // undo
				}
			}
		}
		if !improved {
			break
		}
	}
	return order, nil
}

func reverseRange(s []*domain.Destination, i, j int) {
	for i < j {
		s[i], s[j] = s[j], s[i]
		i++
		j--
	}
}

func compareID(a, b uuid.UUID) int {
	as, bs := a.String(), b.String()
	if as < bs {
		return -1
	}
	if as > bs {
		return 1
	}
	return 0
}

// edgeMatrix holds prefetched edges for every ordered destination pair.
type edgeMatrix struct {
	mode  domain.TravelMode
	edges map[string]domain.RouteEdge
}

func (o *Optimizer) fetchMatrix(ctx context.Context, dests []*domain.Destination, mode domain.TravelMode) (*edgeMatrix, error) {
	pairs := make([]CoordPair, 0, len(dests)*(len(dests)-1))
	for _, a := range dests {
		for _, b := range dests {
			if a.ID == b.ID {
				continue
			}
			pairs = append(pairs, CoordPair{Origin: a.Coords, Dest: b.Coords})
		}
	}

	// Prefer batched lookups when the source supports them.
	if batch, ok := o.edges.(EdgeBatchSource); ok {
		edges, err := batch.GetEdges(ctx, pairs, mode)
		if err != nil {
			return nil, err
		}
		return &edgeMatrix{mode: mode, edges: edges}, nil
	}

	edges := make(map[string]domain.RouteEdge, len(pairs))
	for _, p := range pairs {
		edge, err := o.edges.GetEdge(ctx, p.Origin, p.Dest, mode)
		if err != nil {
			return nil, err
		}
		edges[domain.EdgeKey(p.Origin, p.Dest, mode)] = edge
	}
	return &edgeMatrix{mode: mode, edges: edges}, nil
}

func (m *edgeMatrix) edge(a, b *domain.Destination) domain.RouteEdge {
	return m.edges[domain.EdgeKey(a.Coords, b.Coords, m.mode)]
}

func (m *edgeMatrix) dist(a, b *domain.Destination) int {
	return m.edge(a, b).DistanceMeters
}

func (m *edgeMatrix) pathCost(order []*domain.Destination) int {
	total := 0
	for i := 0; i+1 < len(order); i++ {
		total += m.dist(order[i], order[i+1])
	}
	return total
}

// sequence assembles the final Sequence with legs and totals.
func (m *edgeMatrix) sequence(order []*domain.Destination) *Sequence {
	seq := &Sequence{Destinations: order}
	for i := 0; i+1 < len(order); i++ {
		leg := m.edge(order[i], order[i+1])
		seq.Legs = append(seq.Legs, leg)
		seq.TotalDistanceMeters += leg.DistanceMeters
		seq.TotalDurationSeconds += leg.DurationSeconds
	}
	return seq
}
