package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupGroupRoutes mounts the group allowlist CRUD.
func setupGroupRoutes(r chi.Router, deps *Deps) {
	groups := handler.NewGroupHandler(deps.Store, deps.Logger)

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", groups.List)
		r.Post("/", groups.Create)
		r.Put("/{groupId}", groups.Update)
		r.Delete("/{groupId}", groups.Delete)
	})
}
