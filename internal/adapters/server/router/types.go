package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupTypeRoutes mounts the custom type list management.
func setupTypeRoutes(r chi.Router, deps *Deps) {
	types := handler.NewTypeHandler(deps.Store, deps.Logger)

	r.Get("/types", types.List)
	r.Put("/types", types.Update)
}
