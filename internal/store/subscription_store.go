package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRecord holds the candidate fields for a registry upsert. The
// status must already have been approved by the transition validator against
// the currently stored status.
type SubscriptionRecord struct {
	Platform         string
	TransactionID    string
	UserID           string
	ProductID        string
	Status           domain.Status
	PurchaseDate     *time.Time
	ExpiresDate      *time.Time
	AutoRenewEnabled bool
	AutoRenewProduct string
	Environment      string
}

// SubscriptionStatusForUpdate reads the currently stored status for one
// subscription identity, locking the row for the duration of the enclosing
// transaction so concurrent validate-then-write sequences on the same
// identity serialize. Returns found = false on first sight of an identity.
func (s *PostgresStore) SubscriptionStatusForUpdate(ctx context.Context, platform, transactionID string) (string, bool, error) {
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT status FROM subscriptions
		WHERE platform = $1 AND transaction_id = $2
		FOR UPDATE
	`, platform, transactionID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("locking subscription status: %w", err)
	}
	return status, true, nil
}

// UpsertSubscription writes the validated candidate state, creating the row
// on first sight of an identity. Empty candidate fields do not clobber
// previously stored values.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, rec SubscriptionRecord) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO subscriptions
			(platform, transaction_id, user_id, product_id, status, purchase_date,
			 expires_date, auto_renew_enabled, auto_renew_product, environment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (platform, transaction_id) DO UPDATE SET
			user_id            = COALESCE(NULLIF(EXCLUDED.user_id, ''), subscriptions.user_id),
			product_id         = COALESCE(NULLIF(EXCLUDED.product_id, ''), subscriptions.product_id),
			status             = EXCLUDED.status,
			purchase_date      = COALESCE(EXCLUDED.purchase_date, subscriptions.purchase_date),
			expires_date       = COALESCE(EXCLUDED.expires_date, subscriptions.expires_date),
			auto_renew_enabled = EXCLUDED.auto_renew_enabled,
			auto_renew_product = COALESCE(NULLIF(EXCLUDED.auto_renew_product, ''), subscriptions.auto_renew_product),
			environment        = COALESCE(NULLIF(EXCLUDED.environment, ''), subscriptions.environment),
			updated_at         = NOW()
		RETURNING id
	`, rec.Platform, rec.TransactionID, rec.UserID, rec.ProductID, string(rec.Status),
		rec.PurchaseDate, rec.ExpiresDate, rec.AutoRenewEnabled, rec.AutoRenewProduct, rec.Environment,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting subscription: %w", err)
	}
	return id, nil
}

// GetSubscription returns a single subscription by ID.
func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.QueryRow(ctx, `
		SELECT id, platform, transaction_id, user_id, product_id, status, purchase_date,
		       expires_date, auto_renew_enabled, auto_renew_product, environment,
		       created_at, updated_at
		FROM subscriptions WHERE id = $1
	`, id).Scan(
		&sub.ID, &sub.Platform, &sub.TransactionID, &sub.UserID, &sub.ProductID,
		&sub.Status, &sub.PurchaseDate, &sub.ExpiresDate, &sub.AutoRenewEnabled,
		&sub.AutoRenewProduct, &sub.Environment, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns subscriptions with optional filtering.
func (s *PostgresStore) ListSubscriptions(ctx context.Context, platform, status string, limit int) ([]domain.Subscription, error) {
	query := `
		SELECT id, platform, transaction_id, user_id, product_id, status, purchase_date,
		       expires_date, auto_renew_enabled, auto_renew_product, environment,
		       created_at, updated_at
		FROM subscriptions`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if platform != "" {
		conditions = append(conditions, fmt.Sprintf("platform = $%d", argIdx))
		args = append(args, platform)
		argIdx++
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
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

	query += " ORDER BY updated_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.Platform, &sub.TransactionID, &sub.UserID, &sub.ProductID,
			&sub.Status, &sub.PurchaseDate, &sub.ExpiresDate, &sub.AutoRenewEnabled,
			&sub.AutoRenewProduct, &sub.Environment, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}
