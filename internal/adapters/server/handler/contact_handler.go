package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// ContactHandler implements the allowed-contact admin surface.
type ContactHandler struct {
	*shared.BaseHandler
	config *store.Config
}

// NewContactHandler creates the handler on top of the config store.
func NewContactHandler(config *store.Config, log *logger.Logger) *ContactHandler {
	return &ContactHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		config:      config,
	}
}

// ContactRequest is the create/update payload for a contact. The
// store validates it, so the shape stays plain here.
type ContactRequest struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	LinkedID string `json:"lid,omitempty"`
} // @name ContactRequest

// List returns every allowed contact.
// @Summary List contacts
// @Tags Contacts
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/contacts [get]
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	contacts := h.config.Contacts()
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"contacts": contacts,
		"total":    len(contacts),
	})
}

// Create adds a contact to the allowlist.
// @Summary Add contact
// @Tags Contacts
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param request body ContactRequest true "Contact"
// @Success 201 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Failure 409 {object} shared.ErrorResponse
// @Router /api/contacts [post]
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	contact := store.Contact{
		Phone:    req.Phone,
		Name:     req.Name,
		Type:     req.Type,
		LinkedID: req.LinkedID,
	}
	if err := h.config.AddContact(contact); err != nil {
		h.HandleError(w, err, "add contact")
		return
	}
	h.persist()

	h.LogSuccess("add contact", map[string]interface{}{"phone": req.Phone})
	h.GetWriter().WriteCreated(w, contact, "Contact added")
}

// Update mutates a contact keyed by phone.
// @Summary Update contact
// @Tags Contacts
// @Security BasicAuth
// @Accept json
// @Produce json
// @Param phone path string true "Phone number"
// @Param request body ContactRequest true "Contact"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Failure 404 {object} shared.ErrorResponse
// @Router /api/contacts/{phone} [put]
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	var req ContactRequest
	if err := h.ParseJSONBody(r, &req); err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	contact := store.Contact{
		Phone:    phone,
		Name:     req.Name,
		Type:     req.Type,
		LinkedID: req.LinkedID,
	}
	if err := h.config.UpdateContact(phone, contact); err != nil {
		h.HandleError(w, err, "update contact")
		return
	}
	h.persist()

	h.LogSuccess("update contact", map[string]interface{}{"phone": phone})
	h.GetWriter().WriteSuccess(w, contact, "Contact updated")
}

// Delete removes a contact keyed by phone.
// @Summary Delete contact
// @Tags Contacts
// @Security BasicAuth
// @Produce json
// @Param phone path string true "Phone number"
// @Success 200 {object} shared.SuccessResponse
// @Failure 404 {object} shared.ErrorResponse
// @Router /api/contacts/{phone} [delete]
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	if err := h.config.DeleteContact(phone); err != nil {
		h.HandleError(w, err, "delete contact")
		return
	}
	h.persist()

	h.LogSuccess("delete contact", map[string]interface{}{"phone": phone})
	h.GetWriter().WriteSuccess(w, nil, "Contact deleted")
}

// persist saves the config after a mutation. A failed write is logged
// and retried by the next save trigger; the in-memory state already
// holds the change.
func (h *ContactHandler) persist() {
	if err := h.config.Save(); err != nil {
		h.GetLogger().ErrorWithFields("Config save failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
