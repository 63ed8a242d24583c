package dto

import "time"

type EnqueueMutationRequest struct {
	IdempotencyKey  string     `json:"idempotency_key"`
	DeviceID        string     `json:"device_id"`
	PlanID          string     `json:"plan_id"`
	Kind            string     `json:"kind"`
	EventID         string     `json:"event_id"`
	Title           *string    `json:"title"`
	Start           *time.Time `json:"start"`
	End             *time.Time `json:"end"`
	AllDay          *bool      `json:"all_day"`
	ClientTimestamp *time.Time `json:"client_timestamp"`
	BaseVersion     int64      `json:"base_version"`
}

type DrainRequest struct {
	DeviceID string `json:"device_id"`
}

type DrainResponse struct {
	Applied    int `json:"applied"`
	Conflicted int `json:"conflicted"`
	Rejected   int `json:"rejected"`
	Skipped    int `json:"skipped"`
}
