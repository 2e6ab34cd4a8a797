package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/crmkit/webhook-notifier/internal/domain"
	"github.com/crmkit/webhook-notifier/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStore is an in-memory record store implementing the worker interfaces.
type memStore struct {
	mu            sync.Mutex
	deliveries    map[string]*domain.Delivery
	subscriptions map[string]*domain.Subscription
}

func newMemStore() *memStore {
	return &memStore{
		deliveries:    make(map[string]*domain.Delivery),
		subscriptions: make(map[string]*domain.Subscription),
	}
}

func (m *memStore) putDelivery(d domain.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	m.deliveries[d.ID] = &cp
}

func (m *memStore) putSubscription(s domain.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.subscriptions[s.ID] = &cp
}

func (m *memStore) delivery(id string) domain.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.deliveries[id]
}

func (m *memStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ApplyAttemptOutcome(ctx context.Context, id string, out domain.AttemptOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	d.Status = out.Status
	d.Attempt = out.Attempt
	d.ResponseStatus = out.ResponseStatus
	d.ResponseBody = out.ResponseBody
	d.DurationMs = out.DurationMs
	d.NextRetryAt = out.NextRetryAt
	d.CompletedAt = out.CompletedAt
	return nil
}

func (m *memStore) ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []domain.Delivery
	for _, d := range m.deliveries {
		if d.Status == domain.DeliveryPending && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			due = append(due, *d)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *memStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// reset mirrors the store's manual-retry operation.
func (m *memStore) reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	now := time.Now().UTC()
	d.Status = domain.DeliveryPending
	d.Attempt = 0
	d.NextRetryAt = &now
	d.CompletedAt = nil
}

// freeLock always grants the lease.
type freeLock struct{}

func (freeLock) Acquire(ctx context.Context, deliveryID string) (func(), bool) {
	return func() {}, true
}

// heldLock never grants the lease.
type heldLock struct{}

func (heldLock) Acquire(ctx context.Context, deliveryID string) (func(), bool) {
	return nil, false
}

// syncSubmitter runs each job inline, making sweeps synchronous in tests.
type syncSubmitter struct {
	executor *Executor
}

func (s syncSubmitter) Submit(job engine.Job) {
	s.executor.Execute(context.Background(), job)
}

func pendingDelivery(id, subID string, maxAttempts int) domain.Delivery {
	now := time.Now().UTC()
	return domain.Delivery{
		ID:             id,
		SubscriptionID: subID,
		EventName:      domain.EventDealCreated,
		Payload:        []byte(`{"deal_id":"d1"}`),
		Status:         domain.DeliveryPending,
		Attempt:        0,
		MaxAttempts:    maxAttempts,
		NextRetryAt:    &now,
		CreatedAt:      now,
	}
}

func activeSubscription(id, targetURL string) domain.Subscription {
	return domain.Subscription{
		ID:        id,
		TargetURL: targetURL,
		Secret:    "whsec_test",
		Events:    []string{"deal_created"},
		Active:    true,
	}
}
