package handler

import (
	"net/http"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/pipeline"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// ConnectionHandler exposes the client connection state and the
// pairing artifact.
type ConnectionHandler struct {
	*shared.BaseHandler
	conn *pipeline.Connection
}

// NewConnectionHandler creates the handler on top of the connection
// tracker.
func NewConnectionHandler(config *store.Config, conn *pipeline.Connection, log *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		conn:        conn,
	}
}

// Status returns the connection snapshot with its transition history.
// @Summary Connection status
// @Tags Connection
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/connection [get]
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.GetWriter().WriteSuccess(w, h.conn.Status())
}

// QR returns the current pairing snapshot. hasQr is false when no code
// is pending.
// @Summary Pairing QR code
// @Tags Connection
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/qr [get]
func (h *ConnectionHandler) QR(w http.ResponseWriter, r *http.Request) {
	h.GetWriter().WriteSuccess(w, h.conn.QRSnapshot())
}
