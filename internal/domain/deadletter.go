package domain

import (
	"encoding/json"
	"time"
)

// Dead letter resolution markers.
const (
	ResolvedAuto    = "auto"
	ResolvedExpired = "expired"
	ResolvedManual  = "manual"
)

// DeadLetter is a failed processing attempt awaiting bounded, backed-off
// retry. EventID is a weak reference: the originating event row may be
// purged by retention cleanup while the entry survives, which is why Payload
// snapshots everything needed for a full replay. Once ResolvedAt is set the
// entry is terminal and excluded from scheduling.
type DeadLetter struct {
	ID               string          `json:"id"`
	EventID          *string         `json:"event_id,omitempty"`
	Platform         string          `json:"platform"`
	NotificationType string          `json:"notification_type"`
	SubscriptionRef  string          `json:"subscription_ref,omitempty"`
	FailureReason    string          `json:"failure_reason"`
	FailureDetail    json.RawMessage `json:"failure_detail,omitempty"`
	Payload          json.RawMessage `json:"payload"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	NextRetryAt      time.Time       `json:"next_retry_at"`
	LastRetryAt      *time.Time      `json:"last_retry_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy       *string         `json:"resolved_by,omitempty"`
}
