package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/middleware"
)

// setupAdminRoutes mounts the admin API under /api behind basic auth.
func setupAdminRoutes(r *chi.Mux, deps *Deps) {
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BasicAuth(deps.Config.AdminUsername, deps.Config.AdminPassword, deps.Logger))

		setupContactRoutes(r, deps)
		setupGroupRoutes(r, deps)
		setupTypeRoutes(r, deps)
		setupWebhookRoutes(r, deps)
		setupStatsRoutes(r, deps)
		setupMessageRoutes(r, deps)
		setupConnectionRoutes(r, deps)
		setupSendRoutes(r, deps)
	})
}
