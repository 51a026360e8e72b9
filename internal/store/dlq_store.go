package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// firstRetryDelay is how long after the original failure the first retry
// becomes due.
const firstRetryDelay = time.Minute

// RetryBackoff returns the delay until the next retry for an entry whose
// retry count (after increment) is retryCount: 2^(retryCount+1) minutes.
func RetryBackoff(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount+1)) * time.Minute
}

// DeadLetterRecord holds data for inserting a dead letter entry. Payload is
// the full normalized processor input so the entry can be replayed without
// depending on the original event row.
type DeadLetterRecord struct {
	EventID          *string
	Platform         string
	NotificationType string
	SubscriptionRef  string
	FailureReason    string
	FailureDetail    []byte
	Payload          []byte
	MaxRetries       int
}

// ClaimedRetry is one dead letter entry claimed for a retry attempt.
// RetryCount is the post-increment count.
type ClaimedRetry struct {
	ID         string
	Payload    json.RawMessage
	RetryCount int
	MaxRetries int
}

// InsertDeadLetter captures a failed processing attempt. The first retry is
// scheduled one minute out.
func (s *PostgresStore) InsertDeadLetter(ctx context.Context, rec DeadLetterRecord) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO dead_letter_queue
			(event_id, platform, notification_type, subscription_ref, failure_reason,
			 failure_detail, payload, retry_count, max_retries, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		RETURNING id
	`, rec.EventID, rec.Platform, rec.NotificationType, rec.SubscriptionRef,
		rec.FailureReason, rec.FailureDetail, rec.Payload, rec.MaxRetries,
		time.Now().Add(firstRetryDelay),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("inserting dead letter: %w", err)
	}
	return id, nil
}

// ExpireExhausted resolves every unresolved entry that has used up its retry
// budget, marking it resolved_by = 'expired' for external alerting.
func (s *PostgresStore) ExpireExhausted(ctx context.Context) (int64, error) {
	result, err := s.db.Exec(ctx, `
		UPDATE dead_letter_queue
		SET resolved_at = NOW(), resolved_by = $1
		WHERE resolved_at IS NULL AND retry_count >= max_retries
	`, domain.ResolvedExpired)
	if err != nil {
		return 0, fmt.Errorf("expiring exhausted dead letters: %w", err)
	}
	return result.RowsAffected(), nil
}

// ClaimRetryBatch selects up to limit unresolved entries that are due for a
// retry, ordered by next_retry_at, and reschedules them with exponential
// backoff in the same transaction. FOR UPDATE SKIP LOCKED keeps overlapping
// sweeps from double-incrementing the same entry.
func (s *PostgresStore) ClaimRetryBatch(ctx context.Context, limit int) ([]ClaimedRetry, error) {
	var claimed []ClaimedRetry

	err := s.withTx(ctx, func(tx *PostgresStore) error {
		rows, err := tx.db.Query(ctx, `
			SELECT id, payload, retry_count, max_retries
			FROM dead_letter_queue
			WHERE resolved_at IS NULL
			  AND retry_count < max_retries
			  AND next_retry_at <= NOW()
			ORDER BY next_retry_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("selecting due dead letters: %w", err)
		}

		for rows.Next() {
			var c ClaimedRetry
			if err := rows.Scan(&c.ID, &c.Payload, &c.RetryCount, &c.MaxRetries); err != nil {
				rows.Close()
				return fmt.Errorf("scanning dead letter: %w", err)
			}
			claimed = append(claimed, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating dead letters: %w", err)
		}

		for i := range claimed {
			claimed[i].RetryCount++
			_, err := tx.db.Exec(ctx, `
				UPDATE dead_letter_queue
				SET retry_count = $2, last_retry_at = NOW(), next_retry_at = $3
				WHERE id = $1
			`, claimed[i].ID, claimed[i].RetryCount, time.Now().Add(RetryBackoff(claimed[i].RetryCount)))
			if err != nil {
				return fmt.Errorf("rescheduling dead letter %s: %w", claimed[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ResolveDeadLetter marks a dead letter as resolved. Resolved entries are
// terminal and never scheduled again.
func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id string, resolvedBy string) error {
	result, err := s.db.Exec(ctx, `
		UPDATE dead_letter_queue SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dead letter not found or already resolved")
	}
	return nil
}

// GetDeadLetter returns a single dead letter by ID.
func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := s.db.QueryRow(ctx, `
		SELECT id, event_id, platform, notification_type, subscription_ref, failure_reason,
		       failure_detail, payload, retry_count, max_retries, next_retry_at,
		       last_retry_at, created_at, resolved_at, resolved_by
		FROM dead_letter_queue WHERE id = $1
	`, id).Scan(
		&dl.ID, &dl.EventID, &dl.Platform, &dl.NotificationType, &dl.SubscriptionRef,
		&dl.FailureReason, &dl.FailureDetail, &dl.Payload, &dl.RetryCount, &dl.MaxRetries,
		&dl.NextRetryAt, &dl.LastRetryAt, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

// ListDeadLetters returns dead letter entries with optional filtering.
func (s *PostgresStore) ListDeadLetters(ctx context.Context, platform string, resolved bool, limit int) ([]domain.DeadLetter, error) {
	query := `
		SELECT id, event_id, platform, notification_type, subscription_ref, failure_reason,
		       failure_detail, payload, retry_count, max_retries, next_retry_at,
		       last_retry_at, created_at, resolved_at, resolved_by
		FROM dead_letter_queue`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if platform != "" {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", argIdx))
		args = append(args, platform)
		argIdx++
	}

	if resolved {
		conditions = append(conditions, "resolved_at IS NOT NULL")
	} else {
		conditions = append(conditions, "resolved_at IS NULL")
	}

	query += " WHERE "
	for i, c := range conditions {
		if i > 0 {
			query += " AND "
		}
		query += c
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		err := rows.Scan(
			&dl.ID, &dl.EventID, &dl.Platform, &dl.NotificationType, &dl.SubscriptionRef,
			&dl.FailureReason, &dl.FailureDetail, &dl.Payload, &dl.RetryCount, &dl.MaxRetries,
			&dl.NextRetryAt, &dl.LastRetryAt, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}

	if letters == nil {
		letters = []domain.DeadLetter{}
	}

	return letters, nil
}

// PurgeResolvedDeadLetters deletes resolved entries older than the cutoff.
// Unresolved entries are kept indefinitely.
func (s *PostgresStore) PurgeResolvedDeadLetters(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
		DELETE FROM dead_letter_queue
		WHERE resolved_at IS NOT NULL AND resolved_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purging resolved dead letters: %w", err)
	}
	return result.RowsAffected(), nil
}
