package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupMessageRoutes mounts the message history and media endpoints.
func setupMessageRoutes(r chi.Router, deps *Deps) {
	messages := handler.NewMessageHandler(deps.Store, deps.Messages, deps.Logger)
	media := handler.NewMediaHandler(deps.Store, deps.Media, deps.Logger)

	r.Route("/messages", func(r chi.Router) {
		r.Get("/", messages.Sources)
		r.Get("/{sourceId}", messages.BySource)
		r.Delete("/{sourceId}", messages.DeleteSource)
	})

	r.Get("/media/{handle}", media.Serve)
}
