package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/crmkit/webhook-notifier/internal/domain"
	"github.com/crmkit/webhook-notifier/internal/engine"
	ws "github.com/crmkit/webhook-notifier/internal/websocket"
)

// maxResponseBytes bounds how much of an endpoint's response is stored.
const maxResponseBytes = 1024

// attemptTimeout is the hard per-attempt HTTP deadline. Exceeding it counts
// as a network error.
const attemptTimeout = 10 * time.Second

// DeliveryStore is the slice of the record store the executor and scheduler
// need. The subsystem never assumes a storage engine beyond these operations.
type DeliveryStore interface {
	GetDelivery(ctx context.Context, id string) (*domain.Delivery, error)
	ApplyAttemptOutcome(ctx context.Context, id string, out domain.AttemptOutcome) error
	ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
}

// SubscriptionStore resolves a delivery's owning subscription at attempt time.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
}

// AttemptLock grants exclusive permission to attempt one delivery record.
type AttemptLock interface {
	Acquire(ctx context.Context, deliveryID string) (func(), bool)
}

// webhookBody is the wire contract to receiving endpoints. Field order is the
// serialization order.
type webhookBody struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Executor performs one HTTP attempt for one delivery record: build the
// signed request, apply the timeout, classify the outcome, persist the result.
type Executor struct {
	httpClient    *http.Client
	deliveries    DeliveryStore
	subscriptions SubscriptionStore
	lock          AttemptLock
	policy        RetryPolicy
	hub           *ws.Hub
	logger        *slog.Logger
}

func NewExecutor(deliveries DeliveryStore, subscriptions SubscriptionStore, lock AttemptLock, policy RetryPolicy, hub *ws.Hub, logger *slog.Logger) *Executor {
	return &Executor{
		httpClient:    &http.Client{Timeout: attemptTimeout},
		deliveries:    deliveries,
		subscriptions: subscriptions,
		lock:          lock,
		policy:        policy,
		hub:           hub,
		logger:        logger,
	}
}

// Execute runs one attempt for the job's delivery record. It is safe to call
// for records that are already terminal, mid-flight, or gone — those are
// skipped, which makes sweeps idempotent.
func (e *Executor) Execute(ctx context.Context, job engine.Job) {
	release, ok := e.lock.Acquire(ctx, job.DeliveryID)
	if !ok {
		return
	}
	defer release()

	rec, err := e.deliveries.GetDelivery(ctx, job.DeliveryID)
	if err != nil {
		e.logger.Error("failed to load delivery", "delivery_id", job.DeliveryID, "error", err)
		return
	}
	if rec == nil || rec.Status != domain.DeliveryPending {
		return
	}

	sub, err := e.subscriptions.GetSubscription(ctx, rec.SubscriptionID)
	if err != nil {
		// Leave the record pending; the next sweep retries the lookup.
		e.logger.Error("failed to load subscription",
			"delivery_id", rec.ID,
			"subscription_id", rec.SubscriptionID,
			"error", err,
		)
		return
	}
	if sub == nil || !sub.Active {
		e.finalizeInactive(ctx, rec)
		return
	}

	e.attempt(ctx, rec, sub)
}

// attempt performs the HTTP call and records the transition it causes.
func (e *Executor) attempt(ctx context.Context, rec *domain.Delivery, sub *domain.Subscription) {
	attempt := rec.Attempt + 1

	body, err := json.Marshal(webhookBody{
		Event:     string(rec.EventName),
		Payload:   rec.Payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		e.logger.Error("failed to marshal webhook body", "delivery_id", rec.ID, "error", err)
		return
	}

	start := time.Now()
	responseStatus, responseBody, errMsg := e.send(ctx, rec, sub, body, attempt)
	durationMs := time.Since(start).Milliseconds()

	now := time.Now().UTC()
	out := domain.AttemptOutcome{
		Attempt:        attempt,
		ResponseStatus: responseStatus,
		ResponseBody:   responseBody,
		DurationMs:     &durationMs,
	}

	succeeded := responseStatus != nil && *responseStatus >= 200 && *responseStatus < 300

	switch {
	case succeeded:
		out.Status = domain.DeliverySuccess
		out.CompletedAt = &now

	case attempt >= rec.MaxAttempts:
		out.Status = domain.DeliveryFailed
		out.CompletedAt = &now

	default:
		retryAt := now.Add(e.policy.Backoff(attempt))
		out.Status = domain.DeliveryPending
		out.NextRetryAt = &retryAt
	}

	if err := e.deliveries.ApplyAttemptOutcome(ctx, rec.ID, out); err != nil {
		e.logger.Error("failed to record attempt outcome", "delivery_id", rec.ID, "error", err)
		return
	}

	if succeeded {
		e.logger.Info("delivery successful",
			"delivery_id", rec.ID,
			"subscription_id", rec.SubscriptionID,
			"attempt", attempt,
			"status_code", responseStatus,
			"duration_ms", durationMs,
		)
	} else {
		e.logger.Warn("delivery attempt failed",
			"delivery_id", rec.ID,
			"subscription_id", rec.SubscriptionID,
			"attempt", attempt,
			"status", out.Status,
			"status_code", responseStatus,
			"error", errMsg,
			"duration_ms", durationMs,
		)
	}

	e.broadcast(rec, sub, out)
}

// send issues the signed POST. A nil status pointer means the request never
// produced an HTTP response (network error or timeout).
func (e *Executor) send(ctx context.Context, rec *domain.Delivery, sub *domain.Subscription, body []byte, attempt int) (*int, *string, string) {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		msg := fmt.Sprintf("failed to create request: %v", err)
		return nil, &msg, msg
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(body, sub.Secret))
	req.Header.Set("X-Webhook-Event", string(rec.EventName))
	req.Header.Set("X-Webhook-Delivery", rec.ID)
	req.Header.Set("X-Webhook-Attempt", fmt.Sprintf("%d", attempt))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		msg := fmt.Sprintf("request failed: %v", err)
		return nil, &msg, msg
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	responseBody := string(data)

	return &resp.StatusCode, &responseBody, ""
}

// finalizeInactive terminalizes a delivery whose subscription is gone or
// deactivated. No attempt slot is consumed: the receiver could never have
// succeeded.
func (e *Executor) finalizeInactive(ctx context.Context, rec *domain.Delivery) {
	now := time.Now().UTC()
	msg := "subscription inactive or deleted"

	out := domain.AttemptOutcome{
		Status:         domain.DeliveryFailed,
		Attempt:        rec.Attempt,
		ResponseStatus: rec.ResponseStatus,
		ResponseBody:   &msg,
		DurationMs:     rec.DurationMs,
		CompletedAt:    &now,
	}

	if err := e.deliveries.ApplyAttemptOutcome(ctx, rec.ID, out); err != nil {
		e.logger.Error("failed to finalize delivery", "delivery_id", rec.ID, "error", err)
		return
	}

	e.logger.Warn("delivery terminalized",
		"delivery_id", rec.ID,
		"subscription_id", rec.SubscriptionID,
		"reason", msg,
	)
}

func (e *Executor) broadcast(rec *domain.Delivery, sub *domain.Subscription, out domain.AttemptOutcome) {
	if e.hub == nil {
		return
	}

	var durationMs int64
	if out.DurationMs != nil {
		durationMs = *out.DurationMs
	}

	e.hub.Broadcast(ws.DeliveryUpdate{
		DeliveryID:     rec.ID,
		SubscriptionID: rec.SubscriptionID,
		TargetURL:      sub.TargetURL,
		EventName:      string(rec.EventName),
		Status:         out.Status,
		Attempt:        out.Attempt,
		StatusCode:     out.ResponseStatus,
		DurationMs:     durationMs,
		Timestamp:      time.Now().UTC(),
	})
}
