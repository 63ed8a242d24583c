package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventState is the lifecycle state of a schedule event.
type EventState string

const (
	StateProposed   EventState = "proposed"
	StateScheduled  EventState = "scheduled"
	StateConflicted EventState = "conflicted"
	StateCancelled  EventState = "cancelled"
)

// Allowed lifecycle transitions. Conflicted is entered only through the
// conflict resolver or a forced displacement, never by a plain edit.
var eventTransitions = map[EventState][]EventState{
	StateProposed:   {StateScheduled, StateCancelled},
	StateScheduled:  {StateScheduled, StateConflicted, StateCancelled},
	StateConflicted: {StateScheduled, StateCancelled},
}

// CanTransitionTo reports whether the lifecycle allows moving to the given state.
func (s EventState) CanTransitionTo(to EventState) bool {
	for _, t := range eventTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// ScheduleEvent is a calendar entry for a plan.
//
// An event may back-reference the destination it was derived from; a "free"
// event has no destination. Version is a monotonically increasing stamp used
// for optimistic concurrency. FieldVersions records, per mutable field, the
// version at which it last changed, so the resolver can tell what moved on the
// server since a client's base version.
type ScheduleEvent struct {
	ID             uuid.UUID
	PlanID         uuid.UUID
	DestinationID  *uuid.UUID
	Title          string
	Start          time.Time
	End            time.Time
	AllDay         bool
	Version        int64
	State          EventState
	OverlapAllowed bool
	FieldVersions  map[string]int64
	Conflict       *ConflictInfo
}

// Mutable field names tracked by FieldVersions.
const (
	FieldTitle  = "title"
	FieldStart  = "start"
	FieldEnd    = "end"
	FieldAllDay = "all_day"
)

// ConflictInfo retains both candidate values of a divergent edit until a
// human resolves it. Neither side is discarded.
type ConflictInfo struct {
	LocalCandidate  EventPatch
	ServerCandidate EventPatch
	BaseVersion     int64
	ServerVersion   int64
	DetectedAt      time.Time
}

// EventPatch is a partial update of a ScheduleEvent. Nil fields are untouched.
type EventPatch struct {
	Title  *string    `json:"title,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	AllDay *bool      `json:"all_day,omitempty"`
}

// Fields returns the names of the fields the patch sets, in a fixed order.
func (p EventPatch) Fields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, FieldTitle)
	}
	if p.Start != nil {
		out = append(out, FieldStart)
	}
	if p.End != nil {
		out = append(out, FieldEnd)
	}
	if p.AllDay != nil {
		out = append(out, FieldAllDay)
	}
	return out
}

// Empty reports whether the patch sets no fields.
func (p EventPatch) Empty() bool { return len(p.Fields()) == 0 }

// Apply writes the patch onto the event and records the changed fields at the
// given version. The caller is responsible for bumping Version first.
func (p EventPatch) Apply(ev *ScheduleEvent, version int64) {
	if ev.FieldVersions == nil {
		ev.FieldVersions = make(map[string]int64, 4)
	}
	if p.Title != nil {
		ev.Title = *p.Title
		ev.FieldVersions[FieldTitle] = version
	}
	if p.Start != nil {
		ev.Start = *p.Start
		ev.FieldVersions[FieldStart] = version
	}
	if p.End != nil {
		ev.End = *p.End
		ev.FieldVersions[FieldEnd] = version
	}
	if p.AllDay != nil {
		ev.AllDay = *p.AllDay
		ev.FieldVersions[FieldAllDay] = version
	}
}

// ChangedSince returns the fields that changed on the event after the given
// version, according to its field journal.
func (ev *ScheduleEvent) ChangedSince(version int64) []string {
	var out []string
	for _, f := range []string{FieldTitle, FieldStart, FieldEnd, FieldAllDay} {
		if ev.FieldVersions[f] > version {
			out = append(out, f)
		}
	}
	return out
}

// PatchOf extracts the event's current values for the named fields.
func (ev *ScheduleEvent) PatchOf(fields []string) EventPatch {
	var p EventPatch
	for _, f := range fields {
		switch f {
		case FieldTitle:
			v := ev.Title
			p.Title = &v
		case FieldStart:
			v := ev.Start
			p.Start = &v
		case FieldEnd:
			v := ev.End
			p.End = &v
		case FieldAllDay:
			v := ev.AllDay
			p.AllDay = &v
		}
	}
	return p
}
