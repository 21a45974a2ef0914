package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupWebhookRoutes mounts the destination routing management.
func setupWebhookRoutes(r chi.Router, deps *Deps) {
	webhooks := handler.NewWebhookHandler(deps.Store, deps.Dispatcher, deps.Config.HasEnvWebhookURL(), deps.Logger)

	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/", webhooks.Get)
		r.Put("/default", webhooks.SetDefault)
		r.Put("/types", webhooks.SetTypes)
		r.Get("/health", webhooks.Health)
		r.Post("/test", webhooks.Test)
	})
}
