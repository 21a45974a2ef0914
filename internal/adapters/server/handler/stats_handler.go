package handler

import (
	"net/http"

	"zapfilter/internal/adapters/server/shared"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// StatsHandler serves counters and the recent-event ring.
type StatsHandler struct {
	*shared.BaseHandler
	stats *store.Stats
}

// NewStatsHandler creates the handler on top of the stats store.
func NewStatsHandler(config *store.Config, stats *store.Stats, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		BaseHandler: shared.NewBaseHandler(log, config.Validator()),
		stats:       stats,
	}
}

// Stats returns the full counter snapshot.
// @Summary Event statistics
// @Tags Stats
// @Security BasicAuth
// @Produce json
// @Success 200 {object} shared.SuccessResponse
// @Router /api/stats [get]
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.GetWriter().WriteSuccess(w, h.stats.Snapshot())
}

// Events returns a page of the recent-event ring, newest first,
// optionally filtered by event kind.
// @Summary Recent events
// @Tags Stats
// @Security BasicAuth
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Param event query string false "Filter by event kind"
// @Success 200 {object} shared.SuccessResponse
// @Failure 400 {object} shared.ErrorResponse
// @Router /api/events [get]
func (h *StatsHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := h.GetPaginationParams(r)
	if err != nil {
		h.GetWriter().WriteBadRequest(w, "Invalid pagination parameters", err.Error())
		return
	}
	event := h.GetQueryString(r, "event")

	records, total := h.stats.Recent(limit, offset, event)
	h.GetWriter().WriteSuccess(w, map[string]interface{}{
		"events": records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
