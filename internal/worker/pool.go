package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crmkit/webhook-notifier/internal/engine"
)

// Pool manages a fixed number of goroutines processing delivery jobs.
type Pool struct {
	numWorkers int
	jobs       chan engine.Job
	executor   *Executor
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, executor *Executor, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.Job, numWorkers*2),
		executor:   executor,
		logger:     logger,
	}
}

// Start launches the worker goroutines. They drain the jobs channel until it
// is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a job to the pool. It may briefly block when the buffer is
// full; callers on an emit path are already detached from the emitter.
func (p *Pool) Submit(job engine.Job) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for in-flight work to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.executor.Execute(ctx, job)
		}
	}
}
