package dto

import "time"

type RouteRequest struct {
	Mode string `json:"mode"`
}

type RouteDestinationResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Anchored   bool    `json:"anchored"`
	OrderIndex int     `json:"order_index"`
}

type RouteLegResponse struct {
	DistanceMeters  int  `json:"distance_meters"`
	DurationSeconds int  `json:"duration_seconds"`
	Approximate     bool `json:"approximate,omitempty"`
}

type RouteResponse struct {
	Destinations         []RouteDestinationResponse `json:"destinations"`
	Legs                 []RouteLegResponse         `json:"legs"`
	TotalDistanceMeters  int                        `json:"total_distance_meters"`
	TotalDurationSeconds int                        `json:"total_duration_seconds"`
}

type MaterializeRequest struct {
	Mode     string     `json:"mode"`
	DayStart *time.Time `json:"day_start"`
}
