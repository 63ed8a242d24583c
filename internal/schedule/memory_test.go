package schedule

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

// In-memory fakes for the repository ports. They clone on the way in and out
// so callers observe only what was explicitly stored via Put.

func cloneEvent(ev *domain.ScheduleEvent) *domain.ScheduleEvent {
	if ev == nil {
		return nil
	}
	cp := *ev
	if ev.DestinationID != nil {
		id := *ev.DestinationID
		cp.DestinationID = &id
	}
	if ev.FieldVersions != nil {
		cp.FieldVersions = make(map[string]int64, len(ev.FieldVersions))
		for k, v := range ev.FieldVersions {
			cp.FieldVersions[k] = v
		}
	}
	if ev.Conflict != nil {
		c := *ev.Conflict
		cp.Conflict = &c
	}
	return &cp
}

type memEvents struct {
	mu sync.Mutex
	m  map[uuid.UUID]*domain.ScheduleEvent
}

func newMemEvents() *memEvents {
	return &memEvents{m: make(map[uuid.UUID]*domain.ScheduleEvent)}
}

func (r *memEvents) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.ScheduleEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ScheduleEvent
	for _, ev := range r.m {
		if ev.PlanID == planID {
			out = append(out, cloneEvent(ev))
		}
	}
	slices.SortFunc(out, func(a, b *domain.ScheduleEvent) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (r *memEvents) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduleEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEvent(r.m[id]), nil
}

func (r *memEvents) Put(ctx context.Context, ev *domain.ScheduleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[ev.ID] = cloneEvent(ev)
	return nil
}

type memDestinations struct {
	mu sync.Mutex
	m  map[uuid.UUID]*domain.Destination
}

func newMemDestinations() *memDestinations {
	return &memDestinations{m: make(map[uuid.UUID]*domain.Destination)}
}

func (r *memDestinations) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Destination
	for _, d := range r.m {
		if d.PlanID == planID {
			cp := *d
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Destination) int {
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex - b.OrderIndex
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (r *memDestinations) Get(ctx context.Context, id uuid.UUID) (*domain.Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *memDestinations) Put(ctx context.Context, d *domain.Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.m[d.ID] = &cp
	return nil
}

func (r *memDestinations) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *memDestinations) CountByCoordinate(ctx context.Context, coord domain.Coordinates) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := coord.Rounded()
	count := 0
	for _, d := range r.m {
		if d.Coords.Rounded() == target {
			count++
		}
	}
	return count, nil
}

func (r *memDestinations) UpdateOrder(ctx context.Context, planID uuid.UUID, orderedIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range orderedIDs {
		if d, ok := r.m[id]; ok {
			d.OrderIndex = i
		}
	}
	return nil
}

type memQueue struct {
	mu   sync.Mutex
	muts []*domain.PendingMutation
}

func newMemQueue() *memQueue { return &memQueue{} }

func (r *memQueue) Append(ctx context.Context, m *domain.PendingMutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	cp.LocalID = int64(len(r.muts) + 1)
	m.LocalID = cp.LocalID
	r.muts = append(r.muts, &cp)
	return nil
}

func (r *memQueue) ListPending(ctx context.Context, deviceID string) ([]*domain.PendingMutation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PendingMutation
	for _, m := range r.muts {
		if m.DeviceID == deviceID && m.Status == domain.MutationPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memQueue) MarkStatus(ctx context.Context, localID int64, status domain.MutationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.muts {
		if m.LocalID == localID {
			m.Status = status
			return nil
		}
	}
	return nil
}

func (r *memQueue) StatusByKey(ctx context.Context, key uuid.UUID) (domain.MutationStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found  bool
		status domain.MutationStatus
	)
	for _, m := range r.muts {
		if m.IdempotencyKey != key || m.Status == domain.MutationPending {
			continue
		}
		if m.Status == domain.MutationApplied {
			return domain.MutationApplied, true, nil
		}
		found = true
		status = m.Status
	}
	return status, found, nil
}

func (r *memQueue) statusOf(localID int64) domain.MutationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.muts {
		if m.LocalID == localID {
			return m.Status
		}
	}
	return ""
}

// stubEdges returns the same travel duration for every coordinate pair.
type stubEdges struct {
	seconds int
}

func (s *stubEdges) GetEdge(ctx context.Context, origin, dest domain.Coordinates, mode domain.TravelMode) (domain.RouteEdge, error) {
	return domain.RouteEdge{
		Origin:          origin.Rounded(),
		Destination:     dest.Rounded(),
		Mode:            mode,
		DurationSeconds: s.seconds,
	}, nil
}

type recordingInvalidator struct {
	mu     sync.Mutex
	coords []domain.Coordinates
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, coord domain.Coordinates) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coords = append(r.coords, coord.Rounded())
	return nil
}

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 10, hour, minute, 0, 0, time.UTC)
}
