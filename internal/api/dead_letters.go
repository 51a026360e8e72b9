package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
)

type DeadLetterHandler struct {
	store *store.PostgresStore
}

func NewDeadLetterHandler(s *store.PostgresStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: s}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	resolvedStr := r.URL.Query().Get("resolved")
	limitStr := r.URL.Query().Get("limit")

	resolved := false
	if resolvedStr == "true" {
		resolved = true
	}

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	letters, err := h.store.ListDeadLetters(r.Context(), platform, resolved, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, letters)
}

func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	letter, err := h.store.GetDeadLetter(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if letter == nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	respondJSON(w, http.StatusOK, letter)
}

// Resolve marks an entry handled by an operator. Resolution is terminal: the
// sweep never picks the entry up again.
func (h *DeadLetterHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.ResolveDeadLetter(r.Context(), id, domain.ResolvedManual); err != nil {
		respondError(w, http.StatusNotFound, "dead letter not found or already resolved")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
