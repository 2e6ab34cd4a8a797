package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/crmkit/webhook-notifier/internal/engine"
)

// Scheduler periodically sweeps the record store for pending deliveries whose
// retry time has passed and resubmits them to the worker pool. Subscription
// re-resolution (and terminalizing records whose subscription is gone) happens
// in the executor, so sweep and event-triggered sends share one code path.
type Scheduler struct {
	deliveries DeliveryStore
	submitter  engine.Submitter
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
}

func NewScheduler(deliveries DeliveryStore, submitter engine.Submitter, interval time.Duration, batchSize int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		deliveries: deliveries,
		submitter:  submitter,
		logger:     logger,
		interval:   interval,
		batchSize:  batchSize,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("retry scheduler started", "interval", s.interval, "batch_size", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep submits every due delivery, up to the batch size. Records not yet due
// are untouched; a store error (including mid-startup emptiness) only skips
// this tick.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.deliveries.ListDueDeliveries(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.logger.Error("failed to list due deliveries", "error", err)
		return
	}

	for _, d := range due {
		s.submitter.Submit(engine.Job{DeliveryID: d.ID})
	}

	if len(due) > 0 {
		s.logger.Info("sweep scheduled retries", "count", len(due))
	}
}
