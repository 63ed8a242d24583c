package schedule

import (
	"context"
	"fmt"
	"time"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/platform/obs"
	"trip-planner-service/internal/ports"

	"github.com/google/uuid"
)

// MergeStatus tags the outcome variant of a merge.
type MergeStatus string

const (
	MergeApplied    MergeStatus = "applied"
	MergeConflicted MergeStatus = "conflicted"
	MergeRejected   MergeStatus = "rejected"
)

// MergeOutcome is the tagged result of reconciling one local mutation against
// server state: Applied carries the resulting event, Conflicted carries both
// candidate values, Rejected carries the reason.
type MergeOutcome struct {
	Status   MergeStatus
	Event    *domain.ScheduleEvent
	Conflict *domain.ConflictInfo
	Reason   string
}

func applied(ev *domain.ScheduleEvent) MergeOutcome {
	return MergeOutcome{Status: MergeApplied, Event: ev}
}

func rejected(reason string) MergeOutcome {
	return MergeOutcome{Status: MergeRejected, Reason: reason}
}

// Resolver reconciles locally queued mutations against authoritative server
// state using per-event version stamps.
//
// Divergent versions are classified by field disjointness: changes to
// disjoint field sets merge automatically; overlapping changes never pick a
// winner — the event is marked Conflicted with both candidates retained for
// manual resolution. Deletions win over concurrent edits but deleting an
// already deleted entity is a harmless no-op.
type Resolver struct {
	events ports.EventRepository
	now    func() time.Time
}

func NewResolver(events ports.EventRepository) *Resolver {
	return &Resolver{events: events, now: time.Now}
}

// Merge applies one mutation against the current server event (nil when the
// entity was deleted or never existed). The returned error reports storage
// failures only; semantic failures come back as Rejected or Conflicted.
func (r *Resolver) Merge(ctx context.Context, m *domain.PendingMutation, server *domain.ScheduleEvent) (_ MergeOutcome, err error) {
	defer obs.Time(ctx, "conflict.Merge")(&err)

	switch m.Kind {
	case domain.MutationCreate:
		return r.mergeCreate(ctx, m, server)
	case domain.MutationDelete:
		return r.mergeDelete(ctx, m, server)
	case domain.MutationUpdate:
		return r.mergeUpdate(ctx, m, server)
	default:
		return rejected(fmt.Sprintf("unknown mutation kind %q", m.Kind)), nil
	}
}

func (r *Resolver) mergeCreate(ctx context.Context, m *domain.PendingMutation, server *domain.ScheduleEvent) (MergeOutcome, error) {
	if server != nil {
		return rejected("event already exists"), nil
	}
	if m.Patch.Start == nil || m.Patch.End == nil {
		return rejected("create requires start and end"), nil
	}

	ev := &domain.ScheduleEvent{
		ID:      m.EventID,
		PlanID:  m.PlanID,
		Version: 1,
		State:   domain.StateScheduled,
	}
	m.Patch.Apply(ev, ev.Version)
	if err := validInterval(ev.Start, ev.End, ev.AllDay); err != nil {
		return rejected(err.Error()), nil
	}

	if err := r.events.Put(ctx, ev); err != nil {
		return MergeOutcome{}, fmt.Errorf("merge create: store: %w", err)
	}
	return applied(ev), nil
}

func (r *Resolver) mergeDelete(ctx context.Context, m *domain.PendingMutation, server *domain.ScheduleEvent) (MergeOutcome, error) {
	// Deleting a missing or already cancelled event is a no-op.
	if server == nil {
		return applied(nil), nil
	}
	if server.State == domain.StateCancelled {
		return applied(server), nil
	}

	server.Version++
	server.State = domain.StateCancelled
	server.Conflict = nil
	if err := r.events.Put(ctx, server); err != nil {
		return MergeOutcome{}, fmt.Errorf("merge delete: store: %w", err)
	}
	return applied(server), nil
}

func (r *Resolver) mergeUpdate(ctx context.Context, m *domain.PendingMutation, server *domain.ScheduleEvent) (MergeOutcome, error) {
	if server == nil {
		return rejected("target event does not exist"), nil
	}
	if server.State == domain.StateCancelled {
		// The concurrent deletion wins over this edit.
		return rejected("event was deleted"), nil
	}
	if m.Patch.Empty() {
		return rejected("update sets no fields"), nil
	}

	// Fast path: the mutation was computed against current state.
	if m.BaseVersion == server.Version {
		server.Version++
		m.Patch.Apply(server, server.Version)
		if err := r.events.Put(ctx, server); err != nil {
			return MergeOutcome{}, fmt.Errorf("merge update: store: %w", err)
		}
		return applied(server), nil
	}

	if m.BaseVersion > server.Version {
		return rejected(fmt.Sprintf("base version %d ahead of server version %d", m.BaseVersion, server.Version)), nil
	}

	serverChanged := server.ChangedSince(m.BaseVersion)
	overlap := intersect(m.Patch.Fields(), serverChanged)

	if len(overlap) == 0 {
		// Disjoint changes merge automatically, version moves past both.
		server.Version++
		m.Patch.Apply(server, server.Version)
		if err := r.events.Put(ctx, server); err != nil {
			return MergeOutcome{}, fmt.Errorf("merge update: store: %w", err)
		}
		return applied(server), nil
	}

	// Both sides touched the same fields: keep both candidates visible and
	// take the event out of overlap scheduling until a human decides.
	info := &domain.ConflictInfo{
		LocalCandidate:  m.Patch,
		ServerCandidate: server.PatchOf(serverChanged),
		BaseVersion:     m.BaseVersion,
		ServerVersion:   server.Version,
		DetectedAt:      r.now(),
	}
	server.State = domain.StateConflicted
	server.Conflict = info
	if err := r.events.Put(ctx, server); err != nil {
		return MergeOutcome{}, fmt.Errorf("merge update: store conflict: %w", err)
	}
	return MergeOutcome{Status: MergeConflicted, Event: server, Conflict: info}, nil
}

// ResolveConflict finishes a manual resolution by applying the chosen
// candidate, clearing the conflict and returning the event to Scheduled.
func (r *Resolver) ResolveConflict(ctx context.Context, eventID uuid.UUID, useLocal bool) (*domain.ScheduleEvent, error) {
	ev, err := r.events.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("resolve conflict: load: %w", err)
	}
	if ev == nil {
		return nil, &domain.ValidationError{Field: "event_id", Reason: "unknown event"}
	}
	if ev.State != domain.StateConflicted || ev.Conflict == nil {
		return nil, &domain.ValidationError{Field: "event_id", Reason: "event has no outstanding conflict"}
	}

	choice := ev.Conflict.ServerCandidate
	if useLocal {
		choice = ev.Conflict.LocalCandidate
	}

	ev.Version++
	choice.Apply(ev, ev.Version)
	ev.State = domain.StateScheduled
	ev.Conflict = nil
	if err := r.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("resolve conflict: store: %w", err)
	}
	return ev, nil
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, f := range b {
		set[f] = struct{}{}
	}
	var out []string
	for _, f := range a {
		if _, ok := set[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
