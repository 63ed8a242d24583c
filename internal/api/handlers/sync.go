package handlers

import (
	"net/http"
	"time"

	"trip-planner-service/internal/api/dto"
	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/schedule"

	"github.com/google/uuid"
)

type SyncHandler struct {
	Queue *schedule.SyncQueue
}

// Enqueue appends an offline mutation to the device's durable queue.
func (h *SyncHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req dto.EnqueueMutationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key, err := uuid.Parse(req.IdempotencyKey)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid idempotency key")
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}

	ts := time.Now()
	if req.ClientTimestamp != nil {
		ts = *req.ClientTimestamp
	}

	m := &domain.PendingMutation{
		IdempotencyKey: key,
		DeviceID:       req.DeviceID,
		PlanID:         planID,
		Kind:           domain.MutationKind(req.Kind),
		EventID:        eventID,
		Patch: domain.EventPatch{
			Title:  req.Title,
			Start:  req.Start,
			End:    req.End,
			AllDay: req.AllDay,
		},
		ClientTimestamp: ts,
		BaseVersion:     req.BaseVersion,
	}

	if err := h.Queue.Enqueue(r.Context(), m); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]any{"local_id": m.LocalID})
}

// Drain replays the device's queue. Triggered by the connectivity signal when
// a device comes back online.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	var req dto.DrainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, r, http.StatusBadRequest, "device_id is required")
		return
	}

	report, err := h.Queue.Drain(r.Context(), req.DeviceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.DrainResponse{
		Applied:    report.Applied,
		Conflicted: report.Conflicted,
		Rejected:   report.Rejected,
		Skipped:    report.Skipped,
	})
}
