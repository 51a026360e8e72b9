package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
)

type EventHandler struct {
	store *store.PostgresStore
}

func NewEventHandler(s *store.PostgresStore) *EventHandler {
	return &EventHandler{store: s}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	processedStr := r.URL.Query().Get("processed")
	limitStr := r.URL.Query().Get("limit")

	var processed *bool
	if processedStr != "" {
		v := processedStr == "true"
		processed = &v
	}

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), platform, processed, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}
