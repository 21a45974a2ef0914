package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupContactRoutes mounts the contact allowlist CRUD.
func setupContactRoutes(r chi.Router, deps *Deps) {
	contacts := handler.NewContactHandler(deps.Store, deps.Logger)

	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", contacts.List)
		r.Post("/", contacts.Create)
		r.Put("/{phone}", contacts.Update)
		r.Delete("/{phone}", contacts.Delete)
	})
}
