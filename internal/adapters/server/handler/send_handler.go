package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/pkg/errors"
	"zapfilter/platform/logger"
)

// Sender sends outbound messages. The client adapter implements it;
// the handler receives nil when the adapter is disabled.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendMedia(ctx context.Context, to, caption string, data []byte, mimeType string) (string, error)
	Connected() bool
}

// SendHandler sends text and media through the client adapter.
type SendHandler struct {
	*shared.BaseHandler
	sender Sender
}

// NewSendHandler creates the handler. sender may be nil.
func NewSendHandler(config *store.Config, sender Sender, log *logger.Logger) *SendHandler {
	return &SendHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		sender:      sender,
	}
}

// SendTextRequest is the outbound text payload.
type SendTextRequest struct {
	To   string `json:"to" validate:"required"`
	Body string `json:"body" validate:"required"`
} // @name SendTextRequest

// SendMediaRequest is the outbound media payload. Media is base64,
// optionally as a data URI.
type SendMediaRequest struct {
	To       string `json:"to" validate:"required"`
	Caption  string `json:"caption,omitempty"`
	Media    string `json:"media" validate:"required"`
	MimeType string `json:"mimeType" validate:"required"`
} // @name SendMediaRequest

// SendText sends a text message.
// @Summary Send text message
// @Tags Send
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body SendTextRequest true "Message"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Failure 503 {object} shared.ErrorResponse
// @Router /api/send/text [post]
func (h *SendHandler) SendText(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req SendTextRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}
	if err := h.ValidateStruct(&req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Validation failed", err.Error())
		return
	}

	messageID, err := h.sender.SendText(r.Context(), req.To, req.Body)
	if err != nil {
		h.HandleError(w, err, "send text")
		return
	}

	h.LogSuccess("send text", map[string]interface{}{"to": req.To, "message_id": messageID})
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"messageId": messageID,
		"to":        req.To,
	}, "Message sent")
}

// SendMedia sends a media message.
// @Summary Send media message
// @Tags Send
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body SendMediaRequest true "Media message"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Failure 503 {object} shared.ErrorResponse
// @Router /api/send/media [post]
func (h *SendHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req SendMediaRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}
	if err := h.ValidateStruct(&req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Validation failed", err.Error())
		return
	}

	data, err := decodeMedia(req.Media)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, "Media must be base64 encoded", err.Error())
		return
	}

	messageID, err := h.sender.SendMedia(r.Context(), req.To, req.Caption, data, req.MimeType)
	if err != nil {
		h.HandleError(w, err, "send media")
		return
	}

	h.LogSuccess("send media", map[string]interface{}{
		"to":         req.To,
		"message_id": messageID,
		"mime_type":  req.MimeType,
		"size":       len(data),
	})
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"messageId": messageID,
		"to":        req.To,
	}, "Media sent")
}

// ready rejects sends while the adapter is off or disconnected.
func (h *SendHandler) ready(w http.ResponseWriter) bool {
	if h.sender == nil {
		h.GetWriter().WriteAppError(w, errors.ErrClientDisabled)
		return false
	}
	if !h.sender.Connected() {
		h.GetWriter().WriteAppError(w, errors.ErrClientNotConnected)
		return false
	}
	return true
}

// decodeMedia accepts plain base64 or a data URI.
func decodeMedia(media string) ([]byte, error) {
	if strings.HasPrefix(media, "data:") {
		if idx := strings.Index(media, "base64,"); idx >= 0 {
			media = media[idx+len("base64,"):]
		}
	}
	return base64.StdEncoding.DecodeString(media)
}
