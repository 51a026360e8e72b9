package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/engine"
	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	"github.com/Priya8975/subscription-event-pipeline/internal/worker"
)

const retrySweepLock = "dlq_sweep"

// DLQStore is the slice of the store the retry sweep needs.
type DLQStore interface {
	ExpireExhausted(ctx context.Context) (int64, error)
	ClaimRetryBatch(ctx context.Context, limit int) ([]store.ClaimedRetry, error)
}

// Submitter hands claimed retries to the worker pool.
type Submitter interface {
	Submit(job worker.RetryJob)
}

// RetrySweeper periodically drives the dead letter queue: expire entries
// that used up their retry budget, claim the due batch, and hand each entry
// to the worker pool for replay. The sweep is single-flight across ticks and
// instances via a distributed lock; the skip-locked claim makes even a lost
// lock race harmless.
type RetrySweeper struct {
	store     DLQStore
	pool      Submitter
	locker    *engine.Locker
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRetrySweeper(s DLQStore, pool Submitter, locker *engine.Locker, logger *slog.Logger, interval time.Duration, batchSize int) *RetrySweeper {
	return &RetrySweeper{
		store:     s,
		pool:      pool,
		locker:    locker,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start begins the sweep loop. It runs until the context is cancelled.
func (s *RetrySweeper) Start(ctx context.Context) {
	s.logger.Info("dlq retry sweeper started", "interval", s.interval, "batch_size", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dlq retry sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so operators can trigger it out of band.
func (s *RetrySweeper) Sweep(ctx context.Context) {
	acquired, release := s.locker.Acquire(ctx, retrySweepLock, 2*s.interval)
	if !acquired {
		// Another instance is sweeping
		return
	}
	defer release()

	expired, err := s.store.ExpireExhausted(ctx)
	if err != nil {
		s.logger.Error("failed to expire exhausted dead letters", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Warn("dead letters exhausted retry budget", "count", expired)
	}

	claimed, err := s.store.ClaimRetryBatch(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to claim retry batch", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	for _, c := range claimed {
		var n processor.Notification
		if err := json.Unmarshal(c.Payload, &n); err != nil {
			// Unreplayable snapshot; the entry keeps burning retries until
			// it expires, which is the bounded outcome we want surfaced.
			s.logger.Error("failed to unmarshal dead letter payload",
				"dead_letter_id", c.ID,
				"error", err,
			)
			continue
		}

		s.pool.Submit(worker.RetryJob{
			DeadLetterID: c.ID,
			Notification: n,
			RetryCount:   c.RetryCount,
			MaxRetries:   c.MaxRetries,
		})
	}

	s.logger.Info("retry batch dispatched", "claimed", len(claimed))
}
