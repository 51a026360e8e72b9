package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/engine"
)

const retentionSweepLock = "retention_sweep"

// RetentionStore is the slice of the store the retention sweep needs.
type RetentionStore interface {
	PurgeProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeResolvedDeadLetters(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionSweeper periodically purges processed notification events and
// resolved dead letters older than the retention window. Unprocessed events
// and unresolved entries are kept indefinitely.
type RetentionSweeper struct {
	store    RetentionStore
	locker   *engine.Locker
	logger   *slog.Logger
	interval time.Duration
	window   time.Duration
}

func NewRetentionSweeper(s RetentionStore, locker *engine.Locker, logger *slog.Logger, interval, window time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		store:    s,
		locker:   locker,
		logger:   logger,
		interval: interval,
		window:   window,
	}
}

// Start begins the purge loop. It runs until the context is cancelled.
func (s *RetentionSweeper) Start(ctx context.Context) {
	s.logger.Info("retention sweeper started", "interval", s.interval, "window", s.window)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge pass.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	acquired, release := s.locker.Acquire(ctx, retentionSweepLock, 2*s.interval)
	if !acquired {
		return
	}
	defer release()

	cutoff := time.Now().Add(-s.window)

	events, err := s.store.PurgeProcessedEvents(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to purge processed events", "error", err)
		return
	}

	letters, err := s.store.PurgeResolvedDeadLetters(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to purge resolved dead letters", "error", err)
		return
	}

	if events > 0 || letters > 0 {
		s.logger.Info("retention sweep complete",
			"events_purged", events,
			"dead_letters_purged", letters,
			"cutoff", cutoff,
		)
	}
}
