package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"trip-planner-service/internal/domain"

	"github.com/google/uuid"
)

func serverEvent(planID uuid.UUID) *domain.ScheduleEvent {
	return &domain.ScheduleEvent{
		ID:      uuid.New(),
		PlanID:  planID,
		Title:   "dinner",
		Start:   at(19, 0),
		End:     at(21, 0),
		Version: 1,
		State:   domain.StateScheduled,
		FieldVersions: map[string]int64{
			domain.FieldTitle: 1,
			domain.FieldStart: 1,
			domain.FieldEnd:   1,
		},
	}
}

func updateMutation(planID, eventID uuid.UUID, base int64, patch domain.EventPatch) *domain.PendingMutation {
	return &domain.PendingMutation{
		IdempotencyKey: uuid.New(),
		DeviceID:       "phone",
		PlanID:         planID,
		Kind:           domain.MutationUpdate,
		EventID:        eventID,
		Patch:          patch,
		BaseVersion:    base,
	}
}

func TestMergeUpdateFastPath(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	planID := uuid.New()

	server := serverEvent(planID)
	events.Put(context.Background(), server)
	stored, _ := events.Get(context.Background(), server.ID)

	m := updateMutation(planID, server.ID, 1, domain.EventPatch{Title: strPtr("late dinner")})
	outcome, err := r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeApplied {
		t.Fatalf("status = %s, want applied", outcome.Status)
	}
	if outcome.Event.Version != 2 || outcome.Event.Title != "late dinner" {
		t.Fatalf("merged event = v%d %q", outcome.Event.Version, outcome.Event.Title)
	}
}

func TestMergeUpdateDisjointFieldsAutoMerge(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	planID := uuid.New()

	// The server moved the start at version 2 after the client's base.
	server := serverEvent(planID)
	server.Version = 2
	server.Start = at(20, 0)
	server.FieldVersions[domain.FieldStart] = 2
	events.Put(context.Background(), server)
	stored, _ := events.Get(context.Background(), server.ID)

	// The client renamed the event against version 1.
	m := updateMutation(planID, server.ID, 1, domain.EventPatch{Title: strPtr("supper")})
	outcome, err := r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeApplied {
		t.Fatalf("status = %s, want applied (disjoint fields)", outcome.Status)
	}

	got := outcome.Event
	if got.Title != "supper" {
		t.Fatalf("title = %q, want the local rename kept", got.Title)
	}
	if !got.Start.Equal(at(20, 0)) {
		t.Fatalf("start = %v, want the server move kept", got.Start)
	}
	if got.Version != 3 {
		t.Fatalf("version = %d, want 3 (past both edits)", got.Version)
	}
}

func TestMergeUpdateOverlappingFieldsConflict(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	r.now = func() time.Time { return at(22, 0) }
	planID := uuid.New()

	// Both sides renamed the event.
	server := serverEvent(planID)
	server.Version = 2
	server.Title = "dinner at the bistro"
	server.FieldVersions[domain.FieldTitle] = 2
	events.Put(context.Background(), server)
	stored, _ := events.Get(context.Background(), server.ID)

	m := updateMutation(planID, server.ID, 1, domain.EventPatch{Title: strPtr("dinner at the cafe")})
	outcome, err := r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeConflicted {
		t.Fatalf("status = %s, want conflicted", outcome.Status)
	}

	got, _ := events.Get(context.Background(), server.ID)
	if got.State != domain.StateConflicted {
		t.Fatalf("state = %s, want conflicted", got.State)
	}
	if got.Title != "dinner at the bistro" {
		t.Fatalf("title = %q, the server value must stand until resolution", got.Title)
	}
	if got.Conflict == nil {
		t.Fatal("conflict info must be recorded on the event")
	}
	if got.Conflict.LocalCandidate.Title == nil || *got.Conflict.LocalCandidate.Title != "dinner at the cafe" {
		t.Fatalf("local candidate = %+v", got.Conflict.LocalCandidate)
	}
	if got.Conflict.ServerCandidate.Title == nil || *got.Conflict.ServerCandidate.Title != "dinner at the bistro" {
		t.Fatalf("server candidate = %+v", got.Conflict.ServerCandidate)
	}
	if !got.Conflict.DetectedAt.Equal(at(22, 0)) {
		t.Fatalf("detected at = %v", got.Conflict.DetectedAt)
	}
}

func TestMergeUpdateDeleteWins(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	planID := uuid.New()

	server := serverEvent(planID)
	server.Version = 2
	server.State = domain.StateCancelled
	events.Put(context.Background(), server)
	stored, _ := events.Get(context.Background(), server.ID)

	m := updateMutation(planID, server.ID, 1, domain.EventPatch{Title: strPtr("too late")})
	outcome, err := r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeRejected {
		t.Fatalf("status = %s, want rejected (deletion wins)", outcome.Status)
	}
}

func TestMergeUpdateMissingTarget(t *testing.T) {
	r := NewResolver(newMemEvents())

	m := updateMutation(uuid.New(), uuid.New(), 1, domain.EventPatch{Title: strPtr("ghost")})
	outcome, err := r.Merge(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeRejected {
		t.Fatalf("status = %s, want rejected", outcome.Status)
	}
}

func TestMergeUpdateBaseAheadOfServer(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	planID := uuid.New()

	server := serverEvent(planID)
	events.Put(context.Background(), server)
	stored, _ := events.Get(context.Background(), server.ID)

	m := updateMutation(planID, server.ID, 5, domain.EventPatch{Title: strPtr("from the future")})
	outcome, err := r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeRejected {
		t.Fatalf("status = %s, want rejected", outcome.Status)
	}
}

func TestMergeDelete(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	planID := uuid.New()

	server := serverEvent(planID)
	events.Put(context.Background(), server)
	stored, _ := events.Get(context.Background(), server.ID)

	m := &domain.PendingMutation{
		IdempotencyKey: uuid.New(),
		DeviceID:       "phone",
		PlanID:         planID,
		Kind:           domain.MutationDelete,
		EventID:        server.ID,
	}
	outcome, err := r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeApplied {
		t.Fatalf("status = %s, want applied", outcome.Status)
	}
	if outcome.Event.State != domain.StateCancelled || outcome.Event.Version != 2 {
		t.Fatalf("deleted event = state %s version %d", outcome.Event.State, outcome.Event.Version)
	}

	// Deleting again, and deleting something that never existed, are no-ops.
	again, _ := events.Get(context.Background(), server.ID)
	outcome, err = r.Merge(context.Background(), m, again)
	if err != nil || outcome.Status != MergeApplied {
		t.Fatalf("repeat delete = %s err %v, want applied", outcome.Status, err)
	}
	if outcome.Event.Version != 2 {
		t.Fatalf("repeat delete bumped version to %d", outcome.Event.Version)
	}

	outcome, err = r.Merge(context.Background(), m, nil)
	if err != nil || outcome.Status != MergeApplied {
		t.Fatalf("delete of missing event = %s err %v, want applied", outcome.Status, err)
	}
}

func TestMergeCreate(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)
	planID := uuid.New()
	eventID := uuid.New()

	m := &domain.PendingMutation{
		IdempotencyKey: uuid.New(),
		DeviceID:       "phone",
		PlanID:         planID,
		Kind:           domain.MutationCreate,
		EventID:        eventID,
		Patch: domain.EventPatch{
			Title: strPtr("boat tour"),
			Start: timePtr(at(15, 0)),
			End:   timePtr(at(16, 30)),
		},
	}

	outcome, err := r.Merge(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeApplied {
		t.Fatalf("status = %s, want applied", outcome.Status)
	}
	if outcome.Event.ID != eventID || outcome.Event.Version != 1 || outcome.Event.State != domain.StateScheduled {
		t.Fatalf("created event = %+v", outcome.Event)
	}

	// Replaying the create against the now existing event is rejected.
	stored, _ := events.Get(context.Background(), eventID)
	outcome, err = r.Merge(context.Background(), m, stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeRejected {
		t.Fatalf("status = %s, want rejected for duplicate create", outcome.Status)
	}
}

func TestMergeCreateRequiresInterval(t *testing.T) {
	r := NewResolver(newMemEvents())

	m := &domain.PendingMutation{
		IdempotencyKey: uuid.New(),
		DeviceID:       "phone",
		PlanID:         uuid.New(),
		Kind:           domain.MutationCreate,
		EventID:        uuid.New(),
		Patch:          domain.EventPatch{Title: strPtr("no times")},
	}
	outcome, err := r.Merge(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != MergeRejected {
		t.Fatalf("status = %s, want rejected", outcome.Status)
	}
}

func TestResolveConflictKeepsChosenCandidate(t *testing.T) {
	for _, tc := range []struct {
		name     string
		useLocal bool
		want     string
	}{
		{"local wins", true, "dinner at the cafe"},
		{"server wins", false, "dinner at the bistro"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			events := newMemEvents()
			r := NewResolver(events)
			planID := uuid.New()

			ev := serverEvent(planID)
			ev.Version = 2
			ev.Title = "dinner at the bistro"
			ev.State = domain.StateConflicted
			ev.Conflict = &domain.ConflictInfo{
				LocalCandidate:  domain.EventPatch{Title: strPtr("dinner at the cafe")},
				ServerCandidate: domain.EventPatch{Title: strPtr("dinner at the bistro")},
				BaseVersion:     1,
				ServerVersion:   2,
			}
			events.Put(context.Background(), ev)

			got, err := r.ResolveConflict(context.Background(), ev.ID, tc.useLocal)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Title != tc.want {
				t.Fatalf("title = %q, want %q", got.Title, tc.want)
			}
			if got.State != domain.StateScheduled || got.Conflict != nil {
				t.Fatalf("resolved event = state %s conflict %v", got.State, got.Conflict)
			}
			if got.Version != 3 {
				t.Fatalf("version = %d, want 3", got.Version)
			}
		})
	}
}

func TestResolveConflictRequiresOutstandingConflict(t *testing.T) {
	events := newMemEvents()
	r := NewResolver(events)

	ev := serverEvent(uuid.New())
	events.Put(context.Background(), ev)

	_, err := r.ResolveConflict(context.Background(), ev.ID, true)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = r.ResolveConflict(context.Background(), uuid.New(), true)
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown event, got %v", err)
	}
}
