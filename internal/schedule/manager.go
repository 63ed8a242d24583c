package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/platform/obs"
	"trip-planner-service/internal/ports"
	"trip-planner-service/internal/routing"

	"github.com/google/uuid"
)

// EdgeInvalidator drops cached edges touching a coordinate.
type EdgeInvalidator interface {
	Invalidate(ctx context.Context, coord domain.Coordinates) error
}

// Manager owns the schedule-event lifecycle for plans: materializing
// optimizer output into events, direct edits with overlap detection, and
// deletion. Mutations for one plan are serialized through a per-plan lock so
// overlap checks and version increments stay race-free; different plans
// proceed concurrently.
type Manager struct {
	events       ports.EventRepository
	destinations ports.DestinationRepository
	edges        routing.EdgeSource
	invalidator  EdgeInvalidator          // optional
	onMembership func(planID uuid.UUID)   // optional; fired when destinations change

	mu        sync.Mutex
	planLocks map[uuid.UUID]*sync.Mutex
}

func NewManager(
	events ports.EventRepository,
	destinations ports.DestinationRepository,
	edges routing.EdgeSource,
	invalidator EdgeInvalidator,
	onMembership func(planID uuid.UUID),
) *Manager {
	return &Manager{
		events:       events,
		destinations: destinations,
		edges:        edges,
		invalidator:  invalidator,
		onMembership: onMembership,
		planLocks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockPlan serializes the mutation stream for one plan.
func (m *Manager) lockPlan(planID uuid.UUID) func() {
	m.mu.Lock()
	l, ok := m.planLocks[planID]
	if !ok {
		l = &sync.Mutex{}
		m.planLocks[planID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// MaterializeRoute turns an optimized sequence into Proposed calendar events,
// walking forward from dayStart by visit duration plus travel time. An
// anchored destination with a clock time pulls the cursor forward to it;
// the cursor never moves backward past already placed events.
func (m *Manager) MaterializeRoute(ctx context.Context, planID uuid.UUID, seq *routing.Sequence, dayStart time.Time) (_ []*domain.ScheduleEvent, err error) {
	defer obs.Time(ctx, "schedule.MaterializeRoute")(&err)

	unlock := m.lockPlan(planID)
	defer unlock()

	cursor := dayStart
	events := make([]*domain.ScheduleEvent, 0, len(seq.Destinations))

	for i, d := range seq.Destinations {
		if d.Anchored() && d.FixedTime != nil {
			if at := d.AnchorInstant(); at.After(cursor) {
				cursor = at
			}
		}

		visit := d.VisitDuration
		if visit <= 0 {
			visit = time.Hour
		}

		destID := d.ID
		ev := &domain.ScheduleEvent{
			ID:            uuid.New(),
			PlanID:        planID,
			DestinationID: &destID,
			Title:         d.Name,
			Start:         cursor,
			End:           cursor.Add(visit),
			AllDay:        d.Anchored() && d.FixedTime == nil,
			Version:       1,
			State:         domain.StateProposed,
		}
		if err := m.events.Put(ctx, ev); err != nil {
			return nil, fmt.Errorf("materialize route: store event: %w", err)
		}
		events = append(events, ev)

		cursor = ev.End
		if i < len(seq.Legs) {
			cursor = cursor.Add(time.Duration(seq.Legs[i].DurationSeconds) * time.Second)
		}
	}
	return events, nil
}

// CreateEvent stores a user-created event after an overlap check.
// User-created events start out Scheduled.
func (m *Manager) CreateEvent(ctx context.Context, ev *domain.ScheduleEvent, force bool) (_ *domain.ScheduleEvent, err error) {
	defer obs.Time(ctx, "schedule.CreateEvent")(&err)

	if err := validInterval(ev.Start, ev.End, ev.AllDay); err != nil {
		return nil, err
	}

	unlock := m.lockPlan(ev.PlanID)
	defer unlock()

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.Version = 1
	ev.State = domain.StateScheduled

	if err := m.checkOverlap(ctx, ev, ev.Start, ev.End, force); err != nil {
		return nil, err
	}
	if err := m.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: store: %w", err)
	}
	return ev, nil
}

// ApplyEdit applies a drag-and-drop or direct edit to an event.
//
// The edited interval is checked against every other Scheduled event of the
// plan, with a travel-time buffer reserved when both events reference
// destinations. On overlap the prior value is left untouched and an
// OverlapError listing the colliding event ids is returned, unless the caller
// forces the edit, which also flags each displaced event Conflicted.
// A successful edit bumps the event's version.
func (m *Manager) ApplyEdit(ctx context.Context, planID, eventID uuid.UUID, patch domain.EventPatch, force bool) (_ *domain.ScheduleEvent, err error) {
	defer obs.Time(ctx, "schedule.ApplyEdit")(&err)

	if patch.Empty() {
		return nil, &domain.ValidationError{Field: "patch", Reason: "no fields set"}
	}

	unlock := m.lockPlan(planID)
	defer unlock()

	ev, err := m.events.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("apply edit: load event: %w", err)
	}
	if ev == nil || ev.PlanID != planID {
		return nil, &domain.ValidationError{Field: "event_id", Reason: "unknown event"}
	}
	if ev.State == domain.StateCancelled {
		return nil, &domain.ValidationError{Field: "event_id", Reason: "event is cancelled"}
	}

	newStart, newEnd, newAllDay := ev.Start, ev.End, ev.AllDay
	if patch.Start != nil {
		newStart = *patch.Start
	}
	if patch.End != nil {
		newEnd = *patch.End
	}
	if patch.AllDay != nil {
		newAllDay = *patch.AllDay
	}
	if err := validInterval(newStart, newEnd, newAllDay); err != nil {
		return nil, err
	}

	if patch.Start != nil || patch.End != nil || patch.AllDay != nil {
		if err := m.checkOverlap(ctx, ev, newStart, newEnd, force); err != nil {
			return nil, err
		}
	}

	ev.Version++
	patch.Apply(ev, ev.Version)
	if ev.State == domain.StateProposed {
		// Editing a proposed event is the user's confirmation of it.
		ev.State = domain.StateScheduled
	}
	if err := m.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("apply edit: store: %w", err)
	}
	return ev, nil
}

// Confirm moves a Proposed event into Scheduled.
func (m *Manager) Confirm(ctx context.Context, planID, eventID uuid.UUID) (*domain.ScheduleEvent, error) {
	unlock := m.lockPlan(planID)
	defer unlock()

	ev, err := m.events.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("confirm: load event: %w", err)
	}
	if ev == nil || ev.PlanID != planID {
		return nil, &domain.ValidationError{Field: "event_id", Reason: "unknown event"}
	}
	if !ev.State.CanTransitionTo(domain.StateScheduled) {
		return nil, &domain.ValidationError{Field: "state", Reason: fmt.Sprintf("cannot confirm a %s event", ev.State)}
	}

	ev.Version++
	ev.State = domain.StateScheduled
	if err := m.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("confirm: store: %w", err)
	}
	return ev, nil
}

// Delete cancels an event. The row is kept (soft delete) so an outstanding
// conflict referencing it can still be resolved; deleting an already
// cancelled event is a no-op.
func (m *Manager) Delete(ctx context.Context, planID, eventID uuid.UUID) (*domain.ScheduleEvent, error) {
	unlock := m.lockPlan(planID)
	defer unlock()

	ev, err := m.events.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("delete: load event: %w", err)
	}
	if ev == nil || ev.PlanID != planID {
		return nil, &domain.ValidationError{Field: "event_id", Reason: "unknown event"}
	}
	if ev.State == domain.StateCancelled {
		return ev, nil
	}

	ev.Version++
	ev.State = domain.StateCancelled
	if err := m.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("delete: store: %w", err)
	}
	return ev, nil
}

// RemoveDestination deletes a destination from its plan, cancelling dependent
// events and invalidating cached edges for its coordinates unless another
// stored destination still shares them.
func (m *Manager) RemoveDestination(ctx context.Context, planID, destID uuid.UUID) (err error) {
	defer obs.Time(ctx, "schedule.RemoveDestination")(&err)

	unlock := m.lockPlan(planID)
	defer unlock()

	dest, err := m.destinations.Get(ctx, destID)
	if err != nil {
		return fmt.Errorf("remove destination: load: %w", err)
	}
	if dest == nil || dest.PlanID != planID {
		return &domain.ValidationError{Field: "destination_id", Reason: "unknown destination"}
	}

	events, err := m.events.ListByPlan(ctx, planID)
	if err != nil {
		return fmt.Errorf("remove destination: list events: %w", err)
	}
	for _, ev := range events {
		if ev.DestinationID == nil || *ev.DestinationID != destID || ev.State == domain.StateCancelled {
			continue
		}
		ev.Version++
		ev.State = domain.StateCancelled
		if err := m.events.Put(ctx, ev); err != nil {
			return fmt.Errorf("remove destination: cancel event %s: %w", ev.ID, err)
		}
	}

	if err := m.destinations.Delete(ctx, destID); err != nil {
		return fmt.Errorf("remove destination: delete: %w", err)
	}

	// Cached edges are shared by coordinate; only invalidate when no other
	// stored destination still points there.
	if m.invalidator != nil {
		refs, err := m.destinations.CountByCoordinate(ctx, dest.Coords)
		if err != nil {
			return fmt.Errorf("remove destination: count references: %w", err)
		}
		if refs == 0 {
			if err := m.invalidator.Invalidate(ctx, dest.Coords); err != nil {
				return fmt.Errorf("remove destination: invalidate edges: %w", err)
			}
		}
	}

	if m.onMembership != nil {
		m.onMembership(planID)
	}
	return nil
}

// checkOverlap tests the candidate interval against every other Scheduled
// event of the plan. When both events reference destinations, the travel
// duration between them is reserved as a buffer around the neighbor.
func (m *Manager) checkOverlap(ctx context.Context, ev *domain.ScheduleEvent, start, end time.Time, force bool) error {
	others, err := m.events.ListByPlan(ctx, ev.PlanID)
	if err != nil {
		return fmt.Errorf("overlap check: list events: %w", err)
	}

	var conflicting []*domain.ScheduleEvent
	for _, other := range others {
		if other.ID == ev.ID || other.State != domain.StateScheduled {
			continue
		}
		if other.OverlapAllowed || ev.OverlapAllowed {
			continue
		}

		buffer, err := m.travelBuffer(ctx, ev, other)
		if err != nil {
			return err
		}
		if start.Before(other.End.Add(buffer)) && other.Start.Add(-buffer).Before(end) {
			conflicting = append(conflicting, other)
		}
	}
	if len(conflicting) == 0 {
		return nil
	}

	if !force {
		ids := make([]uuid.UUID, len(conflicting))
		for i, c := range conflicting {
			ids[i] = c.ID
		}
		return &domain.OverlapError{EventID: ev.ID, ConflictingIDs: ids}
	}

	// Forced override: the displaced events need their own resolution.
	for _, c := range conflicting {
		c.Version++
		c.State = domain.StateConflicted
		if err := m.events.Put(ctx, c); err != nil {
			return fmt.Errorf("overlap check: flag displaced event %s: %w", c.ID, err)
		}
	}
	return nil
}

// travelBuffer returns the travel duration between two events' destinations,
// or zero when either event is free. A degraded (approximate) edge still
// yields a usable buffer.
func (m *Manager) travelBuffer(ctx context.Context, a, b *domain.ScheduleEvent) (time.Duration, error) {
	if a.DestinationID == nil || b.DestinationID == nil || m.edges == nil {
		return 0, nil
	}

	da, err := m.destinations.Get(ctx, *a.DestinationID)
	if err != nil {
		return 0, fmt.Errorf("travel buffer: load destination: %w", err)
	}
	db, err := m.destinations.Get(ctx, *b.DestinationID)
	if err != nil {
		return 0, fmt.Errorf("travel buffer: load destination: %w", err)
	}
	if da == nil || db == nil {
		return 0, nil
	}

	edge, err := m.edges.GetEdge(ctx, da.Coords, db.Coords, domain.ModeDriving)
	if err != nil {
		return 0, fmt.Errorf("travel buffer: edge lookup: %w", err)
	}
	return time.Duration(edge.DurationSeconds) * time.Second, nil
}

func validInterval(start, end time.Time, allDay bool) error {
	if start.IsZero() || end.IsZero() {
		return &domain.ValidationError{Field: "interval", Reason: "start and end are required"}
	}
	if allDay {
		if end.Before(start) {
			return &domain.ValidationError{Field: "interval", Reason: "end before start"}
		}
		return nil
	}
	if !end.After(start) {
		return &domain.ValidationError{Field: "interval", Reason: "end must be after start"}
	}
	return nil
}
