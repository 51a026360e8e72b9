package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	ws "github.com/Priya8975/subscription-event-pipeline/internal/websocket"
)

// Processing outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeFailed           = "failed"
)

// Failure reasons recorded on dead letter entries.
const (
	ReasonInvalidTransition = "invalid_transition"
	ReasonProcessingError   = "processing_error"
)

// Result is the tagged outcome of processing one notification, consumed by
// the webhook receiver to decide whether to acknowledge the delivery.
type Result struct {
	Outcome        string `json:"outcome"`
	EventID        string `json:"event_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// SubscriptionFields are the candidate subscription attributes carried by a
// notification.
type SubscriptionFields struct {
	UserID           string     `json:"user_id,omitempty"`
	ProductID        string     `json:"product_id,omitempty"`
	Status           string     `json:"status"`
	PurchaseDate     *time.Time `json:"purchase_date,omitempty"`
	ExpiresDate      *time.Time `json:"expires_date,omitempty"`
	AutoRenewEnabled bool       `json:"auto_renew_enabled"`
	AutoRenewProduct string     `json:"auto_renew_product,omitempty"`
	Environment      string     `json:"environment,omitempty"`
}

// Notification is the normalized inbound event as delivered by the webhook
// receiver: already authenticated, already decoded. It doubles as the dead
// letter replay snapshot, which is why RawPayload is preserved verbatim.
type Notification struct {
	NotificationID   string              `json:"notification_id"`
	Platform         string              `json:"platform"`
	NotificationType string              `json:"notification_type"`
	Subtype          string              `json:"subtype,omitempty"`
	SubscriptionRef  string              `json:"subscription_ref,omitempty"`
	RawPayload       json.RawMessage     `json:"raw_payload"`
	DecodedPayload   json.RawMessage     `json:"decoded_payload,omitempty"`
	SignedDate       time.Time           `json:"signed_date"`
	Subscription     *SubscriptionFields `json:"subscription,omitempty"`
}

// errAlreadyProcessed aborts the atomic unit when a concurrent delivery of
// the same notification committed first. Not a failure: no dead letter, no
// error mark.
var errAlreadyProcessed = errors.New("event already processed")

// transitionError marks a validator rejection so it can be classified apart
// from transient failures.
type transitionError struct {
	current domain.Status
	next    domain.Status
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("illegal status transition %q -> %q", e.current, e.next)
}

// Processor executes the atomic unit: record event, validate, upsert the
// registry, mark processed. All registry writes happen in one transaction;
// on failure only the event row (processed = false, error recorded) and a
// dead letter entry persist.
type Processor struct {
	store      store.Store
	hub        *ws.Hub
	logger     *slog.Logger
	locks      *keyLock
	maxRetries int
}

func New(s store.Store, hub *ws.Hub, logger *slog.Logger, maxRetries int) *Processor {
	return &Processor{
		store:      s,
		hub:        hub,
		logger:     logger,
		locks:      newKeyLock(),
		maxRetries: maxRetries,
	}
}

// ProcessEvent processes an inbound notification. Failures are reported both
// in the returned Result and as a new dead letter entry, so recovery does
// not depend on the caller retrying.
func (p *Processor) ProcessEvent(ctx context.Context, n Notification) Result {
	return p.process(ctx, n, true)
}

// Reprocess re-runs a notification from a dead letter snapshot. Unlike
// ProcessEvent it does not enqueue a new dead letter on failure: the retry
// scheduler already owns the entry being replayed.
func (p *Processor) Reprocess(ctx context.Context, n Notification) Result {
	return p.process(ctx, n, false)
}

func (p *Processor) process(ctx context.Context, n Notification, enqueueOnFailure bool) Result {
	rec, err := p.store.RecordEvent(ctx, store.EventRecord{
		Platform:         n.Platform,
		NotificationID:   n.NotificationID,
		NotificationType: n.NotificationType,
		Subtype:          n.Subtype,
		SubscriptionRef:  n.SubscriptionRef,
		RawPayload:       n.RawPayload,
		DecodedPayload:   n.DecodedPayload,
		SignedDate:       n.SignedDate,
	})
	if err != nil {
		p.logger.Error("failed to record event",
			"platform", n.Platform,
			"notification_id", n.NotificationID,
			"error", err,
		)
		return p.fail(ctx, n, "", err, enqueueOnFailure)
	}

	if rec.Processed {
		p.logger.Info("duplicate notification short-circuited",
			"platform", n.Platform,
			"notification_id", n.NotificationID,
			"event_id", rec.ID,
		)
		return Result{Outcome: OutcomeAlreadyProcessed, EventID: rec.ID}
	}

	var subscriptionID *string
	err = p.withIdentityLock(n, func() error {
		return p.store.InTx(ctx, func(tx store.Store) error {
			// Re-check under row lock: a concurrent delivery of the same
			// notification may have committed since RecordEvent.
			processed, err := tx.EventProcessedForUpdate(ctx, rec.ID)
			if err != nil {
				return err
			}
			if processed {
				return errAlreadyProcessed
			}

			if n.Subscription != nil && n.SubscriptionRef != "" {
				id, err := p.upsertSubscription(ctx, tx, n)
				if err != nil {
					return err
				}
				subscriptionID = &id
			}
			return tx.MarkEventProcessed(ctx, rec.ID, subscriptionID)
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return Result{Outcome: OutcomeAlreadyProcessed, EventID: rec.ID}
	}
	if err != nil {
		return p.fail(ctx, n, rec.ID, err, enqueueOnFailure)
	}

	result := Result{Outcome: OutcomeSuccess, EventID: rec.ID}
	if subscriptionID != nil {
		result.SubscriptionID = *subscriptionID
	}

	p.logger.Info("notification processed",
		"platform", n.Platform,
		"notification_id", n.NotificationID,
		"event_id", rec.ID,
		"notification_type", n.NotificationType,
		"subscription_id", result.SubscriptionID,
	)
	p.broadcast(n, result)
	return result
}

// upsertSubscription validates the candidate status against the currently
// stored one (under row lock) and writes the registry. On first sight of an
// identity any candidate status is accepted.
func (p *Processor) upsertSubscription(ctx context.Context, tx store.Store, n Notification) (string, error) {
	candidate := domain.ParseStatus(n.Subscription.Status)

	current, found, err := tx.SubscriptionStatusForUpdate(ctx, n.Platform, n.SubscriptionRef)
	if err != nil {
		return "", err
	}
	if found && !domain.CanTransition(domain.Status(current), candidate) {
		return "", &transitionError{current: domain.Status(current), next: candidate}
	}

	return tx.UpsertSubscription(ctx, store.SubscriptionRecord{
		Platform:         n.Platform,
		TransactionID:    n.SubscriptionRef,
		UserID:           n.Subscription.UserID,
		ProductID:        n.Subscription.ProductID,
		Status:           candidate,
		PurchaseDate:     n.Subscription.PurchaseDate,
		ExpiresDate:      n.Subscription.ExpiresDate,
		AutoRenewEnabled: n.Subscription.AutoRenewEnabled,
		AutoRenewProduct: n.Subscription.AutoRenewProduct,
		Environment:      n.Subscription.Environment,
	})
}

// withIdentityLock serializes fn per subscription identity. Events without a
// subscription reference have nothing to serialize on.
func (p *Processor) withIdentityLock(n Notification, fn func() error) error {
	if n.SubscriptionRef == "" {
		return fn()
	}
	unlock := p.locks.Lock(n.Platform + "/" + n.SubscriptionRef)
	defer unlock()
	return fn()
}

// fail records the error on the event row, enqueues a dead letter entry when
// asked to, and returns the Failed result. The transaction that produced err
// has already rolled back, so no partial registry writes survive.
func (p *Processor) fail(ctx context.Context, n Notification, eventID string, procErr error, enqueue bool) Result {
	reason := ReasonProcessingError
	var te *transitionError
	if errors.As(procErr, &te) {
		reason = ReasonInvalidTransition
	}

	if eventID != "" {
		if err := p.store.MarkEventError(ctx, eventID, procErr.Error()); err != nil {
			p.logger.Error("failed to record event error", "event_id", eventID, "error", err)
		}
	}

	if enqueue {
		p.enqueueDeadLetter(ctx, n, eventID, reason, procErr)
	}

	p.logger.Warn("notification processing failed",
		"platform", n.Platform,
		"notification_id", n.NotificationID,
		"event_id", eventID,
		"reason", reason,
		"error", procErr,
	)

	result := Result{Outcome: OutcomeFailed, EventID: eventID, Reason: procErr.Error()}
	p.broadcast(n, result)
	return result
}

func (p *Processor) enqueueDeadLetter(ctx context.Context, n Notification, eventID, reason string, procErr error) {
	snapshot, err := json.Marshal(n)
	if err != nil {
		p.logger.Error("failed to snapshot notification for dead letter", "error", err)
		return
	}

	detail, _ := json.Marshal(map[string]string{
		"error":             procErr.Error(),
		"notification_type": n.NotificationType,
		"subtype":           n.Subtype,
	})

	var eventRef *string
	if eventID != "" {
		eventRef = &eventID
	}

	dlqID, err := p.store.InsertDeadLetter(ctx, store.DeadLetterRecord{
		EventID:          eventRef,
		Platform:         n.Platform,
		NotificationType: n.NotificationType,
		SubscriptionRef:  n.SubscriptionRef,
		FailureReason:    reason,
		FailureDetail:    detail,
		Payload:          snapshot,
		MaxRetries:       p.maxRetries,
	})
	if err != nil {
		p.logger.Error("failed to enqueue dead letter",
			"platform", n.Platform,
			"notification_id", n.NotificationID,
			"error", err,
		)
		return
	}

	p.logger.Info("dead letter enqueued",
		"dead_letter_id", dlqID,
		"event_id", eventID,
		"reason", reason,
	)
}

func (p *Processor) broadcast(n Notification, result Result) {
	if p.hub == nil {
		return
	}
	p.hub.Broadcast(ws.ProcessingEvent{
		Type:             "processing_" + result.Outcome,
		EventID:          result.EventID,
		Platform:         n.Platform,
		NotificationType: n.NotificationType,
		SubscriptionRef:  n.SubscriptionRef,
		SubscriptionID:   result.SubscriptionID,
		Error:            result.Reason,
		Timestamp:        time.Now().UTC(),
	})
}
