package handler

import (
	"net/http"

	"github.com/notifyhub/notification-relay/internal/service"
)

// StatsHandler serves a human-readable JSON snapshot of the status store.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp and are separate from this endpoint.
type StatsHandler struct {
	svc *service.NotificationService
}

func NewStatsHandler(svc *service.NotificationService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// GetStats handles GET /notificacoes/stats
//
// @Summary  Per-status record counts
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  domain.Stats
// @Router   /notificacoes/stats [get]
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
