package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"trip-planner-service/internal/api/dto"
	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/routing"
	"trip-planner-service/internal/schedule"
)

type RouteHandler struct {
	Planner *routing.Planner
	Manager *schedule.Manager
}

// Compute optimizes the plan's visiting order and returns it with totals.
// A provider outage degrades individual legs to approximate estimates
// instead of failing the route.
func (h *RouteHandler) Compute(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}

	mode, ok := decodeMode(w, r)
	if !ok {
		return
	}

	seq, err := h.Planner.Recompute(r.Context(), planID, mode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, sequenceToDTO(seq))
}

// Materialize turns the optimized route into proposed calendar events.
func (h *RouteHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid plan id")
		return
	}

	var req dto.MaterializeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := parseMode(w, r, req.Mode)
	if !ok {
		return
	}

	dayStart := time.Now().Truncate(24 * time.Hour).Add(9 * time.Hour)
	if req.DayStart != nil {
		dayStart = *req.DayStart
	}

	seq, err := h.Planner.Recompute(r.Context(), planID, mode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	events, err := h.Manager.MaterializeRoute(r.Context(), planID, seq, dayStart)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.ListEventResponse{Events: make([]dto.EventResponse, 0, len(events))}
	for _, ev := range events {
		res.Events = append(res.Events, eventToDTO(ev))
	}
	writeJSON(w, r, http.StatusCreated, res)
}

func sequenceToDTO(seq *routing.Sequence) dto.RouteResponse {
	res := dto.RouteResponse{
		Destinations:         make([]dto.RouteDestinationResponse, 0, len(seq.Destinations)),
		Legs:                 make([]dto.RouteLegResponse, 0, len(seq.Legs)),
		TotalDistanceMeters:  seq.TotalDistanceMeters,
		TotalDurationSeconds: seq.TotalDurationSeconds,
	}
	for i, d := range seq.Destinations {
		res.Destinations = append(res.Destinations, dto.RouteDestinationResponse{
			ID:         d.ID.String(),
			Name:       d.Name,
			Lat:        d.Coords.Lat,
			Lon:        d.Coords.Lon,
			Anchored:   d.Anchored(),
			OrderIndex: i,
		})
	}
	for _, leg := range seq.Legs {
		res.Legs = append(res.Legs, dto.RouteLegResponse{
			DistanceMeters:  leg.DistanceMeters,
			DurationSeconds: leg.DurationSeconds,
			Approximate:     leg.Approximate,
		})
	}
	return res
}

// decodeBody reads a single JSON object from the request body.
// An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}

func decodeMode(w http.ResponseWriter, r *http.Request) (domain.TravelMode, bool) {
	var req dto.RouteRequest
	if !decodeBody(w, r, &req) {
		return "", false
	}
	return parseMode(w, r, req.Mode)
}

func parseMode(w http.ResponseWriter, r *http.Request, raw string) (domain.TravelMode, bool) {
	switch raw {
	case "", string(domain.ModeDriving):
		return domain.ModeDriving, true
	case string(domain.ModeWalking):
		return domain.ModeWalking, true
	case string(domain.ModeCycling):
		return domain.ModeCycling, true
	default:
		writeError(w, r, http.StatusBadRequest, "mode must be driving, walking or cycling")
		return "", false
	}
}
