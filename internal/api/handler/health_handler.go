package handler

import (
	"net/http"

	"github.com/notifyhub/notification-relay/internal/queue"
)

// BrokerState reports the broker connection state.
type BrokerState interface {
	State() queue.State
}

// HealthHandler serves the readiness check endpoint.
type HealthHandler struct {
	broker BrokerState
}

func NewHealthHandler(broker BrokerState) *HealthHandler {
	return &HealthHandler{broker: broker}
}

type healthResponse struct {
	Status string `json:"status"`
	Broker string `json:"broker"`
}

// Health handles GET /health
//
// @Summary  Readiness check; 503 until the broker channel is usable
// @Tags     system
// @Produce  json
// @Success  200  {object}  healthResponse
// @Failure  503  {object}  healthResponse
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.broker.State()
	if state != queue.StateReady {
		respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Broker: state.String()})
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Broker: state.String()})
}
