package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
)

type SubscriptionHandler struct {
	store *store.PostgresStore
}

func NewSubscriptionHandler(s *store.PostgresStore) *SubscriptionHandler {
	return &SubscriptionHandler{store: s}
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	status := r.URL.Query().Get("status")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	subs, err := h.store.ListSubscriptions(r.Context(), platform, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}
