package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// MessageHandler serves the stored message history.
type MessageHandler struct {
	*shared.BaseHandler
	messages *store.Messages
}

// NewMessageHandler creates the handler on top of the message store.
func NewMessageHandler(config *store.Config, messages *store.Messages, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		messages:    messages,
	}
}

// Sources lists every source with stored messages.
// @Summary List message sources
// @Tags Messages
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/messages [get]
func (h *MessageHandler) Sources(w http.ResponseWriter, r *http.Request) {
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"sources": h.messages.Sources(),
		"total":   h.messages.Total(),
	})
}

// BySource returns a page of one source's messages, newest first.
// @Summary Messages for a source
// @Tags Messages
// @Security BasicAuth
// @Produce json
// @Param sourceId path string true "Source identifier"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /api/messages/{sourceId} [get]
func (h *MessageHandler) BySource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceId")
	limit, offset, err := h.GetPaginationParams(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid pagination parameters", err.Error())
		return
	}

	messages, hasMore := h.messages.Get(sourceID, limit, offset)
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"sourceId": sourceID,
		"messages": messages,
		"hasMore":  hasMore,
	})
}

// DeleteSource drops every stored message of one source.
// @Summary Delete a source's messages
// @Tags Messages
// @Security BasicAuth
// @Produce json
// @Param sourceId path string true "Source identifier"
// @Success 200 {object} shared.SuccessResponse
// @Failure 404 {object} shared.ErrorResponse
// @Router /api/messages/{sourceId} [delete]
func (h *MessageHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceId")

	deleted := h.messages.Delete(sourceID)
	if deleted == 0 {
		h.GetWriter().WriteNotFound(w, "No messages stored for source")
		return
	}

	h.LogSuccess("delete messages", map[string]interface{}{
		"source_id": sourceID,
		"deleted":   deleted,
	})
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"sourceId": sourceID,
		"deleted":  deleted,
	}, "Messages deleted")
}
