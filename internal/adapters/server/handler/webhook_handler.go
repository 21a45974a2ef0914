package handler

import (
	"net/http"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/platform/logger"
)

// WebhookHandler manages destination routing and exposes dispatcher
// health.
type WebhookHandler struct {
	*shared.BaseHandler
	config     *store.Config
	dispatcher *webhook.Dispatcher
	envManaged bool
}

// NewWebhookHandler creates the handler. envManaged marks the default
// destination as environment-provided and therefore not editable.
func NewWebhookHandler(config *store.Config, dispatcher *webhook.Dispatcher, envManaged bool, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		config:      config,
		dispatcher:  dispatcher,
		envManaged:  envManaged,
	}
}

// DefaultWebhookRequest sets the default destination. An empty URL
// clears it.
type DefaultWebhookRequest struct {
	URL string `json:"url"`
} // @name DefaultWebhookRequest

// TypeWebhooksRequest replaces the per-type routing table.
type TypeWebhooksRequest struct {
	TypeWebhooks map[string]string `json:"typeWebhooks"`
} // @name TypeWebhooksRequest

// TestWebhookRequest asks for a test delivery to the destination an
// entity type resolves to.
type TestWebhookRequest struct {
	EntityType string `json:"entityType,omitempty"`
} // @name TestWebhookRequest

// Get returns the active routing configuration.
// @Summary Get webhook routing
// @Tags Webhooks
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/webhooks [get]
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"defaultWebhook": h.config.DefaultWebhook(),
		"typeWebhooks":   h.config.TypeWebhooks(),
		"envManaged":     h.envManaged,
	})
}

// SetDefault stores the default destination.
// @Summary Set default webhook
// @Tags Webhooks
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body DefaultWebhookRequest true "Destination URL"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /api/webhooks/default [put]
func (h *WebhookHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	var req DefaultWebhookRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	if err := h.config.SetDefaultWebhook(req.URL); err != nil {
		h.HandleError(w, err, "set default webhook")
		return
	}
	h.persist()

	h.LogSuccess("set default webhook", map[string]interface{}{"url": req.URL})
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"defaultWebhook": h.config.DefaultWebhook(),
		"envManaged":     h.envManaged,
	}, "Default webhook updated")
}

// SetTypes replaces the per-type routing table.
// @Summary Set type webhooks
// @Tags Webhooks
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body TypeWebhooksRequest true "Entity type to URL map"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /api/webhooks/types [put]
func (h *WebhookHandler) SetTypes(w http.ResponseWriter, r *http.Request) {
	var req TypeWebhooksRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	if err := h.config.SetTypeWebhooks(req.TypeWebhooks); err != nil {
		h.HandleError(w, err, "set type webhooks")
		return
	}
	h.persist()

	h.LogSuccess("set type webhooks", map[string]interface{}{"routes": len(req.TypeWebhooks)})
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"typeWebhooks": h.config.TypeWebhooks(),
	}, "Type webhooks updated")
}

// Health returns the dispatcher's per-destination delivery record.
// @Summary Webhook delivery health
// @Tags Webhooks
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/webhooks/health [get]
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.GetWriter().WriteSuccess(w, h.dispatcher.HealthSnapshot())
}

// Test fires a single test delivery and reports the outcome. The
// response is 200 whether or not the destination answered; the result
// carries the detail.
// @Summary Test webhook delivery
// @Tags Webhooks
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body TestWebhookRequest false "Entity type to resolve; empty uses the default destination"
// @Success 200 {object} shared.SuccessResponse
// @Router /api/webhooks/test [post]
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req TestWebhookRequest
	if r.ContentLength > 0 {
		if err := h.ParseJSONBody(r, &req); err != nil {
			h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
			return
		}
	}

	result := h.dispatcher.Test(r.Context(), req.EntityType)
	h.GetWriter().WriteSuccess(w, result)
}

func (h *WebhookHandler) persist() {
	if err := h.config.Save(); err != nil {
		h.GetLogger().ErrorWithFields("Config save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
