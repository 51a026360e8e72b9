package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
)

// RetryJob is one claimed dead letter entry handed to the pool for replay.
type RetryJob struct {
	DeadLetterID string                 `json:"dead_letter_id"`
	Notification processor.Notification `json:"notification"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
}

// Pool manages a fixed number of worker goroutines that replay retry jobs.
type Pool struct {
	numWorkers int
	jobs       chan RetryJob
	retrier    *Retrier
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, retrier *Retrier, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan RetryJob, numWorkers*2),
		retrier:    retrier,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("retry worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool via the jobs channel.
func (p *Pool) Submit(job RetryJob) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("retry worker pool stopped")
}

// worker is a single goroutine that processes jobs from the channel.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.retrier.Retry(ctx, job)
		}
	}
}
