package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
)

// EventProcessor runs the atomic processing unit for one notification.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, n processor.Notification) processor.Result
}

type NotificationHandler struct {
	processor EventProcessor
}

func NewNotificationHandler(p EventProcessor) *NotificationHandler {
	return &NotificationHandler{processor: p}
}

type ingestResponse struct {
	Outcome        string `json:"outcome"`
	EventID        string `json:"event_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Ingest accepts a normalized platform notification and runs it through the
// processor. Duplicates are acknowledged exactly like first deliveries so the
// platform stops redelivering; failures return 500 so it tries again, on top
// of the dead letter retry already scheduled internally.
func (h *NotificationHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var n processor.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if n.Platform == "" {
		respondError(w, http.StatusBadRequest, "platform is required")
		return
	}
	if n.NotificationType == "" {
		respondError(w, http.StatusBadRequest, "notification_type is required")
		return
	}
	if len(n.RawPayload) == 0 {
		respondError(w, http.StatusBadRequest, "raw_payload is required")
		return
	}
	if !json.Valid(n.RawPayload) {
		respondError(w, http.StatusBadRequest, "raw_payload must be valid JSON")
		return
	}
	if n.SignedDate.IsZero() {
		n.SignedDate = time.Now().UTC()
	}

	result := h.processor.ProcessEvent(r.Context(), n)

	status := http.StatusOK
	if result.Outcome == processor.OutcomeFailed {
		status = http.StatusInternalServerError
	}

	respondJSON(w, status, ingestResponse{
		Outcome:        result.Outcome,
		EventID:        result.EventID,
		SubscriptionID: result.SubscriptionID,
		Reason:         result.Reason,
	})
}
