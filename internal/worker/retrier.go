package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
	ws "github.com/Priya8975/subscription-event-pipeline/internal/websocket"
)

// Reprocessor replays a notification from a dead letter snapshot.
type Reprocessor interface {
	Reprocess(ctx context.Context, n processor.Notification) processor.Result
}

// Resolver marks dead letter entries terminal.
type Resolver interface {
	ResolveDeadLetter(ctx context.Context, id string, resolvedBy string) error
}

// Retrier executes one claimed retry: replay the snapshot through the
// processor and resolve the entry when the replay lands.
type Retrier struct {
	reprocessor Reprocessor
	resolver    Resolver
	hub         *ws.Hub
	logger      *slog.Logger
}

func NewRetrier(reprocessor Reprocessor, resolver Resolver, hub *ws.Hub, logger *slog.Logger) *Retrier {
	return &Retrier{
		reprocessor: reprocessor,
		resolver:    resolver,
		hub:         hub,
		logger:      logger,
	}
}

// Retry replays the job's notification. Success and already-processed both
// resolve the entry as auto: either way the event is now applied and there
// is nothing left to recover. A failed replay leaves the entry for the next
// scheduled attempt — the claim already pushed next_retry_at out.
func (r *Retrier) Retry(ctx context.Context, job RetryJob) {
	result := r.reprocessor.Reprocess(ctx, job.Notification)

	switch result.Outcome {
	case processor.OutcomeSuccess, processor.OutcomeAlreadyProcessed:
		if err := r.resolver.ResolveDeadLetter(ctx, job.DeadLetterID, domain.ResolvedAuto); err != nil {
			r.logger.Error("failed to resolve dead letter after successful retry",
				"dead_letter_id", job.DeadLetterID,
				"error", err,
			)
			return
		}
		r.logger.Info("dead letter retry succeeded",
			"dead_letter_id", job.DeadLetterID,
			"retry_count", job.RetryCount,
			"outcome", result.Outcome,
		)

	case processor.OutcomeFailed:
		r.logger.Warn("dead letter retry failed",
			"dead_letter_id", job.DeadLetterID,
			"retry_count", job.RetryCount,
			"max_retries", job.MaxRetries,
			"error", result.Reason,
		)
	}

	if r.hub != nil {
		r.hub.Broadcast(ws.ProcessingEvent{
			Type:             "retry_" + result.Outcome,
			EventID:          result.EventID,
			Platform:         job.Notification.Platform,
			NotificationType: job.Notification.NotificationType,
			SubscriptionRef:  job.Notification.SubscriptionRef,
			SubscriptionID:   result.SubscriptionID,
			RetryCount:       job.RetryCount,
			Error:            result.Reason,
			Timestamp:        time.Now().UTC(),
		})
	}
}
