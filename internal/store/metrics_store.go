package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
)

// StatusCount is one (platform, status) bucket of the subscription registry.
type StatusCount struct {
	Platform string `json:"platform"`
	Status   string `json:"status"`
	Count    int    `json:"count"`
}

// PipelineMetrics holds aggregated processing statistics for the ops
// dashboard.
type PipelineMetrics struct {
	TotalEvents         int           `json:"total_events"`
	ProcessedEvents     int           `json:"processed_events"`
	ErroredEvents       int           `json:"errored_events"`
	TotalSubscriptions  int           `json:"total_subscriptions"`
	SubscriptionsByKey  []StatusCount `json:"subscriptions_by_status"`
	DLQPending          int           `json:"dlq_pending"`
	DLQNextRetryAt      *time.Time    `json:"dlq_next_retry_at,omitempty"`
	DLQExpired          int           `json:"dlq_expired"`
	DLQResolvedAuto     int           `json:"dlq_resolved_auto"`
	DLQResolvedManually int           `json:"dlq_resolved_manually"`
}

// GetPipelineMetrics returns aggregated pipeline statistics from the database.
func (s *PostgresStore) GetPipelineMetrics(ctx context.Context) (*PipelineMetrics, error) {
	var m PipelineMetrics

	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE processed) AS processed,
			COUNT(*) FILTER (WHERE NOT processed AND processing_error IS NOT NULL) AS errored
		FROM notification_events
	`).Scan(&m.TotalEvents, &m.ProcessedEvents, &m.ErroredEvents)
	if err != nil {
		return nil, fmt.Errorf("querying event metrics: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT platform, status, COUNT(*)
		FROM subscriptions
		GROUP BY platform, status
		ORDER BY platform, status
	`)
	if err != nil {
		return nil, fmt.Errorf("querying subscription counts: %w", err)
	}
	defer rows.Close()

	m.SubscriptionsByKey = []StatusCount{}
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Platform, &sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scanning subscription count: %w", err)
		}
		m.TotalSubscriptions += sc.Count
		m.SubscriptionsByKey = append(m.SubscriptionsByKey, sc)
	}

	err = s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE resolved_at IS NULL) AS pending,
			MIN(next_retry_at) FILTER (WHERE resolved_at IS NULL) AS next_retry,
			COUNT(*) FILTER (WHERE resolved_by = $1) AS expired,
			COUNT(*) FILTER (WHERE resolved_by = $2) AS auto,
			COUNT(*) FILTER (WHERE resolved_by = $3) AS manual
		FROM dead_letter_queue
	`, domain.ResolvedExpired, domain.ResolvedAuto, domain.ResolvedManual).Scan(
		&m.DLQPending, &m.DLQNextRetryAt, &m.DLQExpired, &m.DLQResolvedAuto, &m.DLQResolvedManually,
	)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter metrics: %w", err)
	}

	return &m, nil
}

// RecentProcessingErrors returns the most recent events that failed
// processing and are still unprocessed.
func (s *PostgresStore) RecentProcessingErrors(ctx context.Context, limit int) ([]domain.NotificationEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, platform, notification_id, notification_type, subtype, subscription_ref,
		       raw_payload, decoded_payload, signed_date, processed, processing_error,
		       subscription_id, received_at
		FROM notification_events
		WHERE processed = false AND processing_error IS NOT NULL
		ORDER BY received_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying processing errors: %w", err)
	}
	defer rows.Close()

	var events []domain.NotificationEvent
	for rows.Next() {
		var e domain.NotificationEvent
		err := rows.Scan(
			&e.ID, &e.Platform, &e.NotificationID, &e.NotificationType, &e.Subtype,
			&e.SubscriptionRef, &e.RawPayload, &e.DecodedPayload, &e.SignedDate,
			&e.Processed, &e.ProcessingError, &e.SubscriptionID, &e.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning processing error: %w", err)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []domain.NotificationEvent{}
	}

	return events, nil
}
