package handlers

import (
	"net/http"
	"time"

	"github.com/nahidhasan98/icon-sync/internal/models"
)

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := &models.HealthResponse{
		Status:    "ok",
		Database:  "ok",
		Timestamp: time.Now().Unix(),
	}
	status := http.StatusOK

	if err := h.deliveries.Ping(r.Context()); err != nil {
		h.log.Error("Delivery log unreachable", err)
		response.Status = "degraded"
		response.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.connection != nil {
		response.Notifier = "connected"
		if !h.connection.IsConnected() {
			response.Notifier = "disconnected"
		}
	}

	h.writeJSON(w, response, status)
}
