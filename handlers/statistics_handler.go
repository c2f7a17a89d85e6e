package handlers

import (
	"net/http"

	"github.com/camden-git/civicregistry/services"
)

type StatisticsHandler struct {
	Responder
	Stats *services.StatisticsService
}

func NewStatisticsHandler(stats *services.StatisticsService, rs Responder) *StatisticsHandler {
	return &StatisticsHandler{Responder: rs, Stats: stats}
}

// Overview godoc
// @Summary Registry statistics
// @Tags statistics
// @Produce json
// @Success 200 {object} services.Statistics
// @Router /api/statistics [get]
// @Security BearerAuth
func (h *StatisticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.Overview(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
