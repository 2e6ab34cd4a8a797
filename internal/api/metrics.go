package api

import (
	"net/http"

	"github.com/crmkit/webhook-notifier/internal/store"
	ws "github.com/crmkit/webhook-notifier/internal/websocket"
)

type MetricsHandler struct {
	store *store.PostgresStore
	hub   *ws.Hub
}

func NewMetricsHandler(s *store.PostgresStore, hub *ws.Hub) *MetricsHandler {
	return &MetricsHandler{store: s, hub: hub}
}

// Metrics returns aggregated delivery statistics for operator dashboards.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	type metricsResponse struct {
		store.DeliveryMetrics
		WebSocketClients int `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		DeliveryMetrics:  *metrics,
		WebSocketClients: h.hub.ClientCount(),
	})
}
