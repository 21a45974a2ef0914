package handler

import (
	"net/http"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// TypeHandler manages the custom contact and group type lists.
type TypeHandler struct {
	*shared.BaseHandler
	config *store.Config
}

// NewTypeHandler creates the handler on top of the config store.
func NewTypeHandler(config *store.Config, log *logger.Logger) *TypeHandler {
	return &TypeHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		config:      config,
	}
}

// TypesRequest replaces both custom type lists.
type TypesRequest struct {
	CustomContactTypes []string `json:"customContactTypes"`
	CustomGroupTypes   []string `json:"customGroupTypes"`
} // @name TypesRequest

// List returns the accepted type sets, defaults plus custom.
// @Summary List entity types
// @Tags Types
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/types [get]
func (h *TypeHandler) List(w http.ResponseWriter, r *http.Request) {
	customContacts, customGroups := h.config.CustomTypes()
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"contactTypes":       h.config.ContactTypes(),
		"groupTypes":         h.config.GroupTypes(),
		"customContactTypes": customContacts,
		"customGroupTypes":   customGroups,
	})
}

// Update replaces the custom type lists.
// @Summary Replace custom types
// @Tags Types
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body TypesRequest true "Custom type lists"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /api/types [put]
func (h *TypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req TypesRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	if err := h.config.SetCustomTypes(req.CustomContactTypes, req.CustomGroupTypes); err != nil {
		h.HandleError(w, err, "set custom types")
		return
	}
	if err := h.config.Save(); err != nil {
		h.GetLogger().ErrorWithFields("Config save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	h.LogSuccess("set custom types", map[string]interface{}{
		"contact_types": len(req.CustomContactTypes),
		"group_types":   len(req.CustomGroupTypes),
	})
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"contactTypes": h.config.ContactTypes(),
		"groupTypes":   h.config.GroupTypes(),
	}, "Custom types updated")
}
