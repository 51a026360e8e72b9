package domain

import (
	"strings"
	"time"
)

// Status is the subscription lifecycle state reported by a payment platform.
// Unrecognized platform values are carried through as-is rather than being
// rejected, so new upstream statuses never block ingestion.
type Status string

const (
	StatusActive         Status = "active"
	StatusExpired        Status = "expired"
	StatusInGracePeriod  Status = "in_grace_period"
	StatusInBillingRetry Status = "in_billing_retry"
	StatusPaused         Status = "paused"
	StatusOnHold         Status = "on_hold"
	StatusPending        Status = "pending"
	StatusRevoked        Status = "revoked"
	StatusRefunded       Status = "refunded"
)

// ParseStatus normalizes a raw platform status string. The result is not
// guaranteed to be one of the known constants.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked || s == StatusRefunded
}

// Subscription is the durable current-state record for one subscription
// identity (platform, transaction_id). Rows are never deleted; terminal
// statuses are retained for audit.
type Subscription struct {
	ID               string     `json:"id"`
	Platform         string     `json:"platform"`
	TransactionID    string     `json:"transaction_id"`
	UserID           string     `json:"user_id,omitempty"`
	ProductID        string     `json:"product_id,omitempty"`
	Status           Status     `json:"status"`
	PurchaseDate     *time.Time `json:"purchase_date,omitempty"`
	ExpiresDate      *time.Time `json:"expires_date,omitempty"`
	AutoRenewEnabled bool       `json:"auto_renew_enabled"`
	AutoRenewProduct string     `json:"auto_renew_product,omitempty"`
	Environment      string     `json:"environment,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
