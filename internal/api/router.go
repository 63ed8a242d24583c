package api

import (
	"net/http"

	"trip-planner-service/internal/api/handlers"
	"trip-planner-service/internal/routing"
	"trip-planner-service/internal/schedule"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(planner *routing.Planner, manager *schedule.Manager, resolver *schedule.Resolver, queue *schedule.SyncQueue) http.Handler {
	mux := http.NewServeMux()

	routeHandler := &handlers.RouteHandler{Planner: planner, Manager: manager}
	eventHandler := &handlers.EventHandler{Manager: manager, Resolver: resolver}
	syncHandler := &handlers.SyncHandler{Queue: queue}

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("POST /plans/{id}/route", routeHandler.Compute)
	mux.HandleFunc("POST /plans/{id}/schedule", routeHandler.Materialize)

	mux.HandleFunc("POST /plans/{id}/events", eventHandler.Create)
	mux.HandleFunc("PATCH /plans/{id}/events/{eventID}", eventHandler.Edit)
	mux.HandleFunc("POST /plans/{id}/events/{eventID}/confirm", eventHandler.Confirm)
	mux.HandleFunc("DELETE /plans/{id}/events/{eventID}", eventHandler.Delete)
	mux.HandleFunc("POST /events/{eventID}/resolve", eventHandler.Resolve)
	mux.HandleFunc("DELETE /plans/{id}/destinations/{destID}", eventHandler.RemoveDestination)

	mux.HandleFunc("POST /mutations", syncHandler.Enqueue)
	mux.HandleFunc("POST /sync/drain", syncHandler.Drain)

	return loggingMiddleware(mux)
}
