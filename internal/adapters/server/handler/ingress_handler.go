package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/core/envelope"
	"zapfilter/internal/pipeline"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// configSaveEvery is the cumulative event count between config
// persistence triggers on the ingress path.
const configSaveEvery = 100

const ingressSource = "ingress"

// IngressHandler accepts upstream event payloads and feeds them to the
// pipeline synchronously. The response carries the routing outcome.
type IngressHandler struct {
	*shared.BaseHandler
	router *pipeline.Router
	config *store.Config
	events uint64
}

// NewIngressHandler wires the ingress.
func NewIngressHandler(router *pipeline.Router, config *store.Config, log *logger.Logger) *IngressHandler {
	return &IngressHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		router:      router,
		config:      config,
	}
}

// IngressResponse reports how an inbound event was handled.
type IngressResponse struct {
	Status string          `json:"status" example:"processed"`
	Event  string          `json:"event" example:"MESSAGES_UPSERT"`
	Result pipeline.Result `json:"result"`
} // @name IngressResponse

// Receive handles shapeless payloads; the event kind is inferred from
// the body.
// @Summary Receive event
// @Description Accept an upstream event payload and route it; the event type is detected from the payload shape
// @Tags Ingress
// @Accept json
// @Produce json
// @Param payload body object true "Raw event payload"
// @Success 200 {object} IngressResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /filter [post]
func (h *IngressHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	kind := envelope.DetectEventType(body)
	if kind == "" {
		kind = envelope.MessagesUpsert
	}
	h.route(w, r, kind, body)
}

// ReceiveEvent handles payloads with an explicit event name in the
// path. Hyphens map to underscores and the name is uppercased.
// @Summary Receive named event
// @Description Accept an upstream event payload for an explicit event type
// @Tags Ingress
// @Accept json
// @Produce json
// @Param event path string true "Event name, case-insensitive, hyphens allowed"
// @Param payload body object true "Raw event payload"
// @Success 200 {object} IngressResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /filter/{event} [post]
func (h *IngressHandler) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	kind := envelope.NormalizeEventName(chi.URLParam(r, "event"))
	h.route(w, r, kind, body)
}

// readBody reads and syntax-checks the payload. Anything unreadable is
// a client error.
func (h *IngressHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, "Failed to read request body", err.Error())
		return nil, false
	}
	if len(body) == 0 || !json.Valid(body) {
		h.GetWriter().WriteBadRequest(w, "Request body must be valid JSON")
		return nil, false
	}
	return body, true
}

// route runs the pipeline synchronously and answers with the outcome.
// The response is 200 even when the handler filtered or failed the
// event; the result field carries the detail.
func (h *IngressHandler) route(w http.ResponseWriter, r *http.Request, kind string, body []byte) {
	env := envelope.New(kind, body, ingressSource)
	result := h.router.Route(r.Context(), env)

	h.countAndMaybeSave()

	h.GetWriter().WriteJSON(w, http.StatusOK, IngressResponse{
		Status: "processed",
		Event:  kind,
		Result: result,
	})
}

// countAndMaybeSave persists the config store every configSaveEvery
// cumulative events so runtime edits survive a crash.
func (h *IngressHandler) countAndMaybeSave() {
	if n := atomic.AddUint64(&h.events, 1); n%configSaveEvery == 0 {
		if err := h.config.Save(); err != nil {
			h.GetLogger().ErrorWithFields("Periodic config save failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
