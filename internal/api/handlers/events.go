package handlers

import (
	"net/http"

	"trip-planner-service/internal/api/dto"
	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/schedule"

	"github.com/google/uuid"
)

type EventHandler struct {
	Manager  *schedule.Manager
	Resolver *schedule.Resolver
}

// Create stores a user-created event. Unlike optimizer output, user events
// start out Scheduled.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}

	var req dto.CreateEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Start == nil || req.End == nil {
		writeError(w, r, http.StatusBadRequest, "start and end are required")
		return
	}

	ev := &domain.ScheduleEvent{
		PlanID: planID,
		Title:  req.Title,
		Start:  *req.Start,
		End:    *req.End,
		AllDay: req.AllDay,
	}
	if req.DestinationID != nil {
		destID, err := uuid.Parse(*req.DestinationID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid destination id")
			return
		}
		ev.DestinationID = &destID
	}

	created, err := h.Manager.CreateEvent(r.Context(), ev, req.Force)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, eventToDTO(created))
}

// Edit applies a drag-and-drop or direct edit. Overlaps come back as 409
// with the colliding event ids unless force is set.
func (h *EventHandler) Edit(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}
	eventID, ok := pathUUID(r, "eventID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}

	var req dto.EditEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := domain.EventPatch{
		Title:  req.Title,
		Start:  req.Start,
		End:    req.End,
		AllDay: req.AllDay,
	}

	ev, err := h.Manager.ApplyEdit(r.Context(), planID, eventID, patch, req.Force)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, eventToDTO(ev))
}

// Confirm moves a proposed event onto the schedule.
func (h *EventHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}
	eventID, ok := pathUUID(r, "eventID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}

	ev, err := h.Manager.Confirm(r.Context(), planID, eventID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, eventToDTO(ev))
}

// Delete cancels an event; the row survives until outstanding conflicts
// referencing it are resolved.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}
	eventID, ok := pathUUID(r, "eventID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}

	ev, err := h.Manager.Delete(r.Context(), planID, eventID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, eventToDTO(ev))
}

// Resolve finishes a manual conflict resolution by picking one candidate.
func (h *EventHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(r, "eventID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}

	var req dto.ResolveConflictRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Choose != "local" && req.Choose != "server" {
		writeError(w, r, http.StatusBadRequest, `choose must be "local" or "server"`)
		return
	}

	ev, err := h.Resolver.ResolveConflict(r.Context(), eventID, req.Choose == "local")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, eventToDTO(ev))
}

// RemoveDestination drops a destination from the plan, cancelling its events
// and releasing cached edges nothing else references.
func (h *EventHandler) RemoveDestination(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}
	destID, ok := pathUUID(r, "destID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid destination id")
		return
	}

	if err := h.Manager.RemoveDestination(r.Context(), planID, destID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "removed"})
}
