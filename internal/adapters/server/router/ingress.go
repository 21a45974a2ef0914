package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupIngressRoutes mounts the open event intake.
func setupIngressRoutes(r *chi.Mux, deps *Deps) {
	ingress := handler.NewIngressHandler(deps.Pipeline, deps.Store, deps.Logger)

	r.Post("/filter", ingress.Receive)
	r.Post("/filter/{event}", ingress.ReceiveEvent)
}
