package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupStatsRoutes mounts counters and the recent-event ring.
func setupStatsRoutes(r chi.Router, deps *Deps) {
	stats := handler.NewStatsHandler(deps.Store, deps.Stats, deps.Logger)

	r.Get("/stats", stats.Stats)
	r.Get("/events", stats.Events)
}
