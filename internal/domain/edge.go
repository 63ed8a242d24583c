package domain

import (
	"fmt"
	"time"
)

// RouteEdge is cached travel data between two coordinate pairs.
// It is derived, never authoritative: entries expire after a TTL and are
// evicted when either endpoint's coordinates change.
type RouteEdge struct {
	Origin          Coordinates
	Destination     Coordinates
	Mode            TravelMode
	DistanceMeters  int
	DurationSeconds int
	Path            []Coordinates
	Approximate     bool // true when derived from the haversine fallback
	CachedAt        time.Time
}

// EdgeKey builds the cache key for an origin/destination/mode triple.
// Coordinates are rounded first so near-duplicate lookups share an entry.
func EdgeKey(origin, dest Coordinates, mode TravelMode) string {
	o := origin.Rounded()
	d := dest.Rounded()
	return fmt.Sprintf("%.5f,%.5f|%.5f,%.5f|%s", o.Lat, o.Lon, d.Lat, d.Lon, mode)
}

// CoordKey builds the index key for a single rounded coordinate, used to find
// every cached edge touching that point when it must be invalidated.
func CoordKey(c Coordinates) string {
	r := c.Rounded()
	return fmt.Sprintf("%.5f,%.5f", r.Lat, r.Lon)
}
