package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupSendRoutes mounts outbound sending through the client adapter.
func setupSendRoutes(r chi.Router, deps *Deps) {
	send := handler.NewSendHandler(deps.Store, deps.Sender, deps.Logger)

	r.Route("/send", func(r chi.Router) {
		r.Post("/text", send.SendText)
		r.Post("/media", send.SendMedia)
	})
}
