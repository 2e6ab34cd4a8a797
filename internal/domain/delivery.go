package domain

import (
	"encoding/json"
	"time"
)

// Delivery statuses. pending is the only non-terminal state; success and
// failed are terminal and left only by an explicit manual retry.
const (
	DeliveryPending = "pending"
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// Delivery is the persisted state of all attempts to notify one subscription
// of one event instance. The payload is a snapshot taken at emit time. The id
// is sent to the receiver so repeated deliveries can be deduplicated.
type Delivery struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventName      EventName       `json:"event_name"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	ResponseStatus *int            `json:"response_status,omitempty"`
	ResponseBody   *string         `json:"response_body,omitempty"`
	DurationMs     *int64          `json:"duration_ms,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the delivery has reached a final state.
func (d *Delivery) Terminal() bool {
	return d.Status == DeliverySuccess || d.Status == DeliveryFailed
}

// AttemptOutcome carries everything one attempt decided about a delivery.
// The store applies it as a single atomic update so concurrent readers never
// see a half-written transition.
type AttemptOutcome struct {
	Status         string
	Attempt        int
	ResponseStatus *int
	ResponseBody   *string
	DurationMs     *int64
	NextRetryAt    *time.Time
	CompletedAt    *time.Time
}
