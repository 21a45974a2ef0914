package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// MediaHandler serves stored media blobs by handle.
type MediaHandler struct {
	*shared.BaseHandler
	media *store.Media
}

// NewMediaHandler creates the handler on top of the media store.
func NewMediaHandler(config *store.Config, media *store.Media, log *logger.Logger) *MediaHandler {
	return &MediaHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		media:       media,
	}
}

// Serve streams one stored attachment.
// @Summary Download stored media
// @Tags Media
// @Security BasicAuth
// @Produce octet-stream
// @Param handle path string true "Media handle"
// @Success 200 {file} binary
// @Failure 404 {object} shared.ErrorResponse
// @Router /api/media/{handle} [get]
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	info, err := h.media.Get(handle)
	if err != nil {
		h.HandleError(w, err, "serve media")
		return
	}

	if info.MimeType != "" {
		w.Header().Set("Content-Type", info.MimeType)
	}
	http.ServeFile(w, r, info.FilePath)
}
