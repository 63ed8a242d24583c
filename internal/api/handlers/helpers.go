package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"trip-planner-service/internal/api/dto"
	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/routing"
	"trip-planner-service/internal/schedule"

	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Overlaps and
// conflicts reach the caller with enough detail for a user decision; anything
// unclassified is an internal error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		capacity   *domain.CapacityError
		overlap    *domain.OverlapError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, r, http.StatusBadRequest, validation.Error())
	case errors.As(err, &capacity):
		writeError(w, r, http.StatusUnprocessableEntity, capacity.Error())
	case errors.As(err, &overlap):
		ids := make([]string, len(overlap.ConflictingIDs))
		for i, id := range overlap.ConflictingIDs {
			ids[i] = id.String()
		}
		writeJSON(w, r, http.StatusConflict, dto.OverlapResponse{
			Error:          overlap.Error(),
			ConflictingIDs: ids,
		})
	case errors.Is(err, schedule.ErrDrainInFlight):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, routing.ErrStale):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("request failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// pathUUID parses one {name} path segment as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	return id, err == nil
}

func eventToDTO(ev *domain.ScheduleEvent) dto.EventResponse {
	out := dto.EventResponse{
		ID:      ev.ID.String(),
		PlanID:  ev.PlanID.String(),
		Title:   ev.Title,
		Start:   ev.Start,
		End:     ev.End,
		AllDay:  ev.AllDay,
		Version: ev.Version,
		State:   string(ev.State),
	}
	if ev.DestinationID != nil {
		s := ev.DestinationID.String()
		out.DestinationID = &s
	}
	if ev.Conflict != nil {
		out.Conflict = &dto.ConflictResponse{
			Local:         candidateToDTO(ev.Conflict.LocalCandidate),
			Server:        candidateToDTO(ev.Conflict.ServerCandidate),
			BaseVersion:   ev.Conflict.BaseVersion,
			ServerVersion: ev.Conflict.ServerVersion,
			DetectedAt:    ev.Conflict.DetectedAt,
		}
	}
	return out
}

func candidateToDTO(p domain.EventPatch) dto.ConflictCandidate {
	return dto.ConflictCandidate{
		Title:  p.Title,
		Start:  p.Start,
		End:    p.End,
		AllDay: p.AllDay,
	}
}
