package domain

import (
	"encoding/json"
	"time"
)

// NotificationEvent is one durably recorded inbound lifecycle notification,
// deduplicated by (platform, notification_id). Identity fields are immutable
// after insert; only Processed, ProcessingError and SubscriptionID mutate.
type NotificationEvent struct {
	ID               string          `json:"id"`
	Platform         string          `json:"platform"`
	NotificationID   string          `json:"notification_id"`
	NotificationType string          `json:"notification_type"`
	Subtype          string          `json:"subtype,omitempty"`
	SubscriptionRef  string          `json:"subscription_ref,omitempty"`
	RawPayload       json.RawMessage `json:"raw_payload"`
	DecodedPayload   json.RawMessage `json:"decoded_payload,omitempty"`
	SignedDate       time.Time       `json:"signed_date"`
	Processed        bool            `json:"processed"`
	ProcessingError  *string         `json:"processing_error,omitempty"`
	SubscriptionID   *string         `json:"subscription_id,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
}
