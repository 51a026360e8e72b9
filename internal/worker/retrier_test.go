package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/domain"
	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
)

type fakeReprocessor struct {
	result processor.Result
	calls  atomic.Int32
}

func (f *fakeReprocessor) Reprocess(ctx context.Context, n processor.Notification) processor.Result {
	f.calls.Add(1)
	return f.result
}

type fakeResolver struct {
	mu       sync.Mutex
	resolved map[string]string
	err      error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{resolved: make(map[string]string)}
}

func (f *fakeResolver) ResolveDeadLetter(ctx context.Context, id string, resolvedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.resolved[id] = resolvedBy
	return nil
}

func (f *fakeResolver) resolvedBy(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	by, ok := f.resolved[id]
	return by, ok
}

func workerTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleJob(id string) RetryJob {
	return RetryJob{
		DeadLetterID: id,
		Notification: processor.Notification{
			NotificationID:   "n-" + id,
			Platform:         "app_store",
			NotificationType: "DID_RENEW",
			SubscriptionRef:  "tx-1",
			RawPayload:       json.RawMessage(`{}`),
			SignedDate:       time.Now().UTC(),
		},
		RetryCount: 2,
		MaxRetries: 5,
	}
}

func TestRetrier_ResolvesOnSuccess(t *testing.T) {
	rp := &fakeReprocessor{result: processor.Result{Outcome: processor.OutcomeSuccess, EventID: "evt-1"}}
	res := newFakeResolver()
	r := NewRetrier(rp, res, nil, workerTestLogger())

	r.Retry(context.Background(), sampleJob("dlq-1"))

	by, ok := res.resolvedBy("dlq-1")
	if !ok {
		t.Fatal("entry should be resolved after successful retry")
	}
	if by != domain.ResolvedAuto {
		t.Errorf("resolved_by = %q, want %q", by, domain.ResolvedAuto)
	}
}

func TestRetrier_ResolvesWhenAlreadyProcessed(t *testing.T) {
	// The event may have been applied by another path while the entry sat
	// in the queue; nothing is left to recover.
	rp := &fakeReprocessor{result: processor.Result{Outcome: processor.OutcomeAlreadyProcessed, EventID: "evt-1"}}
	res := newFakeResolver()
	r := NewRetrier(rp, res, nil, workerTestLogger())

	r.Retry(context.Background(), sampleJob("dlq-2"))

	if _, ok := res.resolvedBy("dlq-2"); !ok {
		t.Error("already-processed replay should resolve the entry")
	}
}

func TestRetrier_LeavesEntryOnFailure(t *testing.T) {
	rp := &fakeReprocessor{result: processor.Result{Outcome: processor.OutcomeFailed, Reason: "still broken"}}
	res := newFakeResolver()
	r := NewRetrier(rp, res, nil, workerTestLogger())

	r.Retry(context.Background(), sampleJob("dlq-3"))

	if _, ok := res.resolvedBy("dlq-3"); ok {
		t.Error("failed retry must not resolve the entry")
	}
}

func TestRetrier_ResolveErrorDoesNotPanic(t *testing.T) {
	rp := &fakeReprocessor{result: processor.Result{Outcome: processor.OutcomeSuccess}}
	res := newFakeResolver()
	res.err = errors.New("db unavailable")
	r := NewRetrier(rp, res, nil, workerTestLogger())

	r.Retry(context.Background(), sampleJob("dlq-4"))
}

func TestPool_ProcessesJobs(t *testing.T) {
	rp := &fakeReprocessor{result: processor.Result{Outcome: processor.OutcomeSuccess}}
	res := newFakeResolver()
	retrier := NewRetrier(rp, res, nil, workerTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(3, retrier, workerTestLogger())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		pool.Submit(sampleJob("dlq-pool-" + string(rune('a'+i))))
	}

	pool.Stop()

	if got := rp.calls.Load(); got != 5 {
		t.Errorf("expected 5 jobs processed, got %d", got)
	}
}
