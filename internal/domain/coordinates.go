package domain

import "math"

// Geographic coordinates (latitude, longitude) in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Five decimal places is roughly one meter, so near-duplicate lookups
// share a cache entry.
const coordPrecision = 1e5

// Rounded returns the coordinates rounded to cache-key precision.
func (c Coordinates) Rounded() Coordinates {
	return Coordinates{
		Lat: math.Round(c.Lat*coordPrecision) / coordPrecision,
		Lon: math.Round(c.Lon*coordPrecision) / coordPrecision,
	}
}

// Valid reports whether the coordinates lie inside WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
