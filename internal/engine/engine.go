package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crmkit/webhook-notifier/internal/bus"
	"github.com/crmkit/webhook-notifier/internal/domain"
	"github.com/google/uuid"
)

// Job identifies one delivery record ready for an attempt. Workers reload the
// record from the store, so the id is all a job carries.
type Job struct {
	DeliveryID string
}

// Submitter is where the engine hands delivery jobs off to; the worker pool
// implements it.
type Submitter interface {
	Submit(job Job)
}

// SubscriptionFinder resolves which active subscriptions listen to an event.
type SubscriptionFinder interface {
	FindMatchingSubscriptions(ctx context.Context, name domain.EventName) ([]domain.Subscription, error)
}

// DeliveryCreator persists freshly scheduled delivery records.
type DeliveryCreator interface {
	CreateDelivery(ctx context.Context, d *domain.Delivery) error
}

// Engine listens on the event bus and schedules one delivery per matching
// subscription. The emitting caller is never blocked and never sees delivery
// errors: the bus handler returns after spawning a detached goroutine.
type Engine struct {
	subscriptions SubscriptionFinder
	deliveries    DeliveryCreator
	submitter     Submitter
	maxAttempts   int
	logger        *slog.Logger
}

func New(subscriptions SubscriptionFinder, deliveries DeliveryCreator, submitter Submitter, maxAttempts int, logger *slog.Logger) *Engine {
	return &Engine{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		submitter:     submitter,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// Register subscribes the engine to every event in the fixed enumeration.
func (e *Engine) Register(b *bus.Bus) error {
	for _, name := range domain.AllEvents {
		if err := b.Subscribe(name, e.handleEvent); err != nil {
			return fmt.Errorf("registering delivery engine: %w", err)
		}
	}
	return nil
}

// handleEvent is the bus listener. It returns immediately; fan-out runs on a
// fresh background context so it survives the emitting request.
func (e *Engine) handleEvent(_ context.Context, evt domain.Event) {
	go e.fanOut(context.Background(), evt)
}

// fanOut creates one delivery record per matching active subscription and
// submits each for an immediate first attempt. No matches is a no-op.
func (e *Engine) fanOut(ctx context.Context, evt domain.Event) {
	subs, err := e.subscriptions.FindMatchingSubscriptions(ctx, evt.Name)
	if err != nil {
		e.logger.Error("failed to resolve subscriptions", "event", evt.Name, "error", err)
		return
	}

	if len(subs) == 0 {
		return
	}

	now := time.Now().UTC()
	scheduled := 0

	for _, sub := range subs {
		d := &domain.Delivery{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			EventName:      evt.Name,
			Payload:        evt.Payload,
			Status:         domain.DeliveryPending,
			Attempt:        0,
			MaxAttempts:    e.maxAttempts,
			NextRetryAt:    &now,
			CreatedAt:      now,
		}

		if err := e.deliveries.CreateDelivery(ctx, d); err != nil {
			e.logger.Error("failed to create delivery record",
				"event", evt.Name,
				"subscription_id", sub.ID,
				"error", err,
			)
			continue
		}

		e.submitter.Submit(Job{DeliveryID: d.ID})
		scheduled++
	}

	e.logger.Info("fan-out complete",
		"event", evt.Name,
		"deliveries_scheduled", scheduled,
	)
}
