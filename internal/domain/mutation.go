package domain

import (
	"time"

	"github.com/google/uuid"
)

// MutationKind is the operation a pending mutation performs.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// MutationStatus tracks a queued mutation's progress through replay.
type MutationStatus string

const (
	MutationPending  MutationStatus = "pending"
	MutationApplied  MutationStatus = "applied"
	MutationRejected MutationStatus = "rejected"
)

// PendingMutation is one entry in a device's offline queue.
//
// LocalID preserves device-local enqueue order. The idempotency key makes
// replays safe: a key the store already reports as applied is never
// re-executed. BaseVersion is the event version the mutation was computed
// against; divergence from the server's version signals a concurrent edit.
type PendingMutation struct {
	LocalID         int64
	IdempotencyKey  uuid.UUID
	DeviceID        string
	PlanID          uuid.UUID
	Kind            MutationKind
	EventID         uuid.UUID
	Patch           EventPatch
	ClientTimestamp time.Time
	BaseVersion     int64
	Status          MutationStatus
}
