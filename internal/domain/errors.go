package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports malformed input rejected before reaching the core.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ExternalServiceError wraps a directions-provider failure that survived
// retries. Callers degrade to the haversine fallback instead of failing hard.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service: %s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// CapacityError rejects optimization of plans over the destination cap.
type CapacityError struct {
	Count int
	Max   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity: %d destinations exceeds cap of %d; split the plan", e.Count, e.Max)
}

// OverlapError reports the events an edited interval would collide with.
// The edit is not applied; the caller decides whether to force it.
type OverlapError struct {
	EventID        uuid.UUID
	ConflictingIDs []uuid.UUID
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlap: event %s collides with %d scheduled event(s)", e.EventID, len(e.ConflictingIDs))
}
