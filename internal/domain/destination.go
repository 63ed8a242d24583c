package domain

import (
	"time"

	"github.com/google/uuid"
)

// TravelMode selects the routing profile used for edge lookups.
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
	ModeWalking TravelMode = "walking"
	ModeCycling TravelMode = "cycling"
)

// Destination is a single place a plan intends to visit.
//
// A destination carrying a FixedDate is an anchor: the optimizer treats it as
// an immovable checkpoint and never reorders it relative to other anchors.
type Destination struct {
	ID            uuid.UUID
	PlanID        uuid.UUID
	Name          string
	Coords        Coordinates
	Category      string
	FixedDate     *time.Time // date the visit is pinned to; nil for unanchored
	FixedTime     *time.Time // optional clock time on the fixed date
	VisitDuration time.Duration
	OrderIndex    int
}

// Anchored reports whether the destination is pinned to a date.
func (d *Destination) Anchored() bool { return d.FixedDate != nil }

// AnchorInstant combines FixedDate and FixedTime into a single instant for
// chronological ordering of anchors. Anchors without a clock time sort at the
// start of their day.
func (d *Destination) AnchorInstant() time.Time {
	if d.FixedDate == nil {
		return time.Time{}
	}
	day := *d.FixedDate
	if d.FixedTime == nil {
		return day
	}
	t := *d.FixedTime
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}
