package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	ws "github.com/Priya8975/subscription-event-pipeline/internal/websocket"
)

type DashboardHandler struct {
	store *store.PostgresStore
	hub   *ws.Hub
}

func NewDashboardHandler(s *store.PostgresStore, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, hub: hub}
}

// Metrics returns aggregated pipeline metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetPipelineMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	type metricsResponse struct {
		store.PipelineMetrics
		WebSocketClients int `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		PipelineMetrics:  *metrics,
		WebSocketClients: h.hub.ClientCount(),
	})
}

// ProcessingErrors returns the most recent events stuck with a processing
// error, for operator triage.
func (h *DashboardHandler) ProcessingErrors(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.RecentProcessingErrors(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get processing errors")
		return
	}

	respondJSON(w, http.StatusOK, events)
}
