package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// GroupHandler implements the allowed-group admin surface.
type GroupHandler struct {
	*shared.BaseHandler
	config *store.Config
}

// NewGroupHandler creates the handler on top of the config store.
func NewGroupHandler(config *store.Config, log *logger.Logger) *GroupHandler {
	return &GroupHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		config:      config,
	}
}

// GroupRequest is the create/update payload for a group.
type GroupRequest struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
} // @name GroupRequest

// List returns every allowed group.
// @Summary List groups
// @Tags Groups
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/groups [get]
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups := h.config.Groups()
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"groups": groups,
		"total":  len(groups),
	})
}

// Create adds a group to the allowlist.
// @Summary Add group
// @Tags Groups
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body GroupRequest true "Group"
// @Success 201 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Failure 409 {object} shared.ErrorResponse
// @Router /api/groups [post]
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	group := store.Group{
		GroupID: req.GroupID,
		Name:    req.Name,
		Type:    req.Type,
	}
	if err := h.config.AddGroup(group); err != nil {
		h.HandleError(w, err, "add group")
		return
	}
	h.persist()

	h.LogSuccess("add group", map[string]interface{}{"group_id": req.GroupID})
	h.GetWriter().WriteCreated(w, group, "Group added")
}

// Update mutates a group keyed by ID.
// @Summary Update group
// @Tags Groups
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param groupId path string true "Group ID"
// @Param request body GroupRequest true "Group"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Failure 404 {object} shared.ErrorResponse
// @Router /api/groups/{groupId} [put]
func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	var req GroupRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	group := store.Group{
		GroupID: groupID,
		Name:    req.Name,
		Type:    req.Type,
	}
	if err := h.config.UpdateGroup(groupID, group); err != nil {
		h.HandleError(w, err, "update group")
		return
	}
	h.persist()

	h.LogSuccess("update group", map[string]interface{}{"group_id": groupID})
	h.GetWriter().WriteSuccess(w, group, "Group updated")
}

// Delete removes a group keyed by ID.
// @Summary Delete group
// @Tags Groups
// @Security BasicAuth
// @Produce json
// @Param groupId path string true "Group ID"
// @Success 200 {object} shared.SuccessResponse
// @Failure 404 {object} shared.ErrorResponse
// @Router /api/groups/{groupId} [delete]
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	if err := h.config.DeleteGroup(groupID); err != nil {
		h.HandleError(w, err, "delete group")
		return
	}
	h.persist()

	h.LogSuccess("delete group", map[string]interface{}{"group_id": groupID})
	h.GetWriter().WriteSuccess(w, nil, "Group deleted")
}

func (h *GroupHandler) persist() {
	if err := h.config.Save(); err != nil {
		h.GetLogger().ErrorWithFields("Config save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
