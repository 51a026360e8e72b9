package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
	"unicode"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// maxNotificationIDLen matches the notification_id column width.
const maxNotificationIDLen = 255

// EventRecord holds data for recording an inbound notification.
type EventRecord struct {
	Platform         string
	NotificationID   string
	NotificationType string
	Subtype          string
	SubscriptionRef  string
	RawPayload       []byte
	DecodedPayload   []byte
	SignedDate       time.Time
}

// RecordedEvent is the outcome of RecordEvent: the persisted row's id and
// whether that row has already been processed.
type RecordedEvent struct {
	ID        string
	Processed bool
}

// CanonicalNotificationID returns the identifier used for deduplication.
// Platforms occasionally deliver ids that are empty, oversized or contain
// control bytes; those are replaced by a sha256 of the raw id (or of the raw
// payload when the id is empty), which is deterministic across retries of
// the same delivery so uniqueness still holds.
func CanonicalNotificationID(notificationID string, rawPayload []byte) string {
	if notificationID == "" {
		return hashHex(rawPayload)
	}
	if len(notificationID) > maxNotificationIDLen {
		return hashHex([]byte(notificationID))
	}
	for _, r := range notificationID {
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return hashHex([]byte(notificationID))
		}
	}
	return notificationID
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RecordEvent durably records an inbound notification, keyed by
// (platform, notification_id). If a row already exists it is returned
// unmodified with its current processed flag — this is the single
// coordination point that makes redelivery safe.
func (s *PostgresStore) RecordEvent(ctx context.Context, rec EventRecord) (RecordedEvent, error) {
	notificationID := CanonicalNotificationID(rec.NotificationID, rec.RawPayload)

	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO notification_events
			(platform, notification_id, notification_type, subtype, subscription_ref, raw_payload, decoded_payload, signed_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (platform, notification_id) DO NOTHING
		RETURNING id
	`, rec.Platform, notificationID, rec.NotificationType, rec.Subtype,
		rec.SubscriptionRef, rec.RawPayload, rec.DecodedPayload, rec.SignedDate,
	).Scan(&id)
	if err == nil {
		return RecordedEvent{ID: id, Processed: false}, nil
	}
	if err != pgx.ErrNoRows {
		return RecordedEvent{}, fmt.Errorf("inserting notification event: %w", err)
	}

	// Conflict: the event was already recorded by an earlier delivery.
	var existing RecordedEvent
	err = s.db.QueryRow(ctx, `
		SELECT id, processed FROM notification_events
		WHERE platform = $1 AND notification_id = $2
	`, rec.Platform, notificationID).Scan(&existing.ID, &existing.Processed)
	if err != nil {
		return RecordedEvent{}, fmt.Errorf("querying existing notification event: %w", err)
	}
	return existing, nil
}

// EventProcessedForUpdate re-reads the processed flag under row lock. Called
// inside the atomic unit's transaction, it serializes concurrent deliveries
// of the same notification: the loser blocks until the winner commits and
// then observes processed = true.
func (s *PostgresStore) EventProcessedForUpdate(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := s.db.QueryRow(ctx, `
		SELECT processed FROM notification_events WHERE id = $1 FOR UPDATE
	`, eventID).Scan(&processed)
	if err != nil {
		return false, fmt.Errorf("locking notification event: %w", err)
	}
	return processed, nil
}

// MarkEventProcessed flips the event to processed, attaching the resulting
// subscription id and clearing any error from earlier failed attempts.
func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID string, subscriptionID *string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notification_events
		SET processed = true, processing_error = NULL, subscription_id = $2
		WHERE id = $1
	`, eventID, subscriptionID)
	if err != nil {
		return fmt.Errorf("marking event processed: %w", err)
	}
	return nil
}

// MarkEventError records a processing failure on the event row. The row
// stays processed = false so a later retry can pick it up again.
func (s *PostgresStore) MarkEventError(ctx context.Context, eventID string, errMsg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notification_events
		SET processing_error = $2
		WHERE id = $1 AND processed = false
	`, eventID, errMsg)
	if err != nil {
		return fmt.Errorf("marking event error: %w", err)
	}
	return nil
}

// GetEvent returns a single notification event by ID.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.NotificationEvent, error) {
	var e domain.NotificationEvent
	err := s.db.QueryRow(ctx, `
		SELECT id, platform, notification_id, notification_type, subtype, subscription_ref,
		       raw_payload, decoded_payload, signed_date, processed, processing_error,
		       subscription_id, received_at
		FROM notification_events WHERE id = $1
	`, id).Scan(
		&e.ID, &e.Platform, &e.NotificationID, &e.NotificationType, &e.Subtype,
		&e.SubscriptionRef, &e.RawPayload, &e.DecodedPayload, &e.SignedDate,
		&e.Processed, &e.ProcessingError, &e.SubscriptionID, &e.ReceivedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying notification event: %w", err)
	}
	return &e, nil
}

// ListEvents returns notification events with optional filtering.
func (s *PostgresStore) ListEvents(ctx context.Context, platform string, processed *bool, limit int) ([]domain.NotificationEvent, error) {
	query := `
		SELECT id, platform, notification_id, notification_type, subtype, subscription_ref,
		       raw_payload, decoded_payload, signed_date, processed, processing_error,
		       subscription_id, received_at
		FROM notification_events`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if platform != "" {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", argIdx))
		args = append(args, platform)
		argIdx++
	}
	if processed != nil {
		conditions = append(conditions, fmt.Sprintf("processed = $%d", argIdx))
		args = append(args, *processed)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY received_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notification events: %w", err)
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
			return nil, fmt.Errorf("scanning notification event: %w", err)
		}
		events = append(events, e)
	}

	if events == nil {
		events = []domain.NotificationEvent{}
	}

	return events, nil
}

// PurgeProcessedEvents deletes processed events older than the cutoff.
// Unprocessed events are kept indefinitely.
func (s *PostgresStore) PurgeProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
		DELETE FROM notification_events
		WHERE processed = true AND received_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purging processed events: %w", err)
	}
	return result.RowsAffected(), nil
}
