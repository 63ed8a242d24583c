package dto

import "time"

type CreateEventRequest struct {
	Title         string     `json:"title"`
	Start         *time.Time `json:"start"`
	End           *time.Time `json:"end"`
	AllDay        bool       `json:"all_day"`
	DestinationID *string    `json:"destination_id"`
	Force         bool       `json:"force"`
}

type EditEventRequest struct {
	Title  *string    `json:"title"`
	Start  *time.Time `json:"start"`
	End    *time.Time `json:"end"`
	AllDay *bool      `json:"all_day"`
	Force  bool       `json:"force"`
}

type ResolveConflictRequest struct {
	Choose string `json:"choose"` // "local" or "server"
}

type ConflictCandidate struct {
	Title  *string    `json:"title,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	AllDay *bool      `json:"all_day,omitempty"`
}

type ConflictResponse struct {
	Local         ConflictCandidate `json:"local"`
	Server        ConflictCandidate `json:"server"`
	BaseVersion   int64             `json:"base_version"`
	ServerVersion int64             `json:"server_version"`
	DetectedAt    time.Time         `json:"detected_at"`
}

type EventResponse struct {
	ID            string            `json:"id"`
	PlanID        string            `json:"plan_id"`
	DestinationID *string           `json:"destination_id,omitempty"`
	Title         string            `json:"title"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	AllDay        bool              `json:"all_day"`
	Version       int64             `json:"version"`
	State         string            `json:"state"`
	Conflict      *ConflictResponse `json:"conflict,omitempty"`
}

type ListEventResponse struct {
	Events []EventResponse `json:"events"`
}

type OverlapResponse struct {
	Error          string   `json:"error"`
	ConflictingIDs []string `json:"conflicting_ids"`
}
