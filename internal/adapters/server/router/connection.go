package router

import (
	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
)

// setupConnectionRoutes mounts the connection state and pairing
// endpoints.
func setupConnectionRoutes(r chi.Router, deps *Deps) {
	connection := handler.NewConnectionHandler(deps.Store, deps.Connection, deps.Logger)

	r.Get("/connection", connection.Status)
	r.Get("/qr", connection.QR)
}
