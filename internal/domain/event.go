package domain

import (
	"encoding/json"
	"time"
)

// EventName identifies a domain event. The set of valid names is closed and
// known at compile time; subscribing or emitting anything else is a
// programming error.
type EventName string

const (
	EventContactCreated      EventName = "contact_created"
	EventContactUpdated      EventName = "contact_updated"
	EventContactDeleted      EventName = "contact_deleted"
	EventDealCreated         EventName = "deal_created"
	EventDealUpdated         EventName = "deal_updated"
	EventDealDeleted         EventName = "deal_deleted"
	EventTaskCreated         EventName = "task_created"
	EventTaskCompleted       EventName = "task_completed"
	EventChatMessageReceived EventName = "chat_message_received"
)

// EventWildcard matches every event name. It is valid only in a subscription's
// event list, never as an emitted name.
const EventWildcard = "*"

// AllEvents lists every emittable event name in a stable order.
var AllEvents = []EventName{
	EventContactCreated,
	EventContactUpdated,
	EventContactDeleted,
	EventDealCreated,
	EventDealUpdated,
	EventDealDeleted,
	EventTaskCreated,
	EventTaskCompleted,
	EventChatMessageReceived,
}

// ValidEventName reports whether name is part of the fixed enumeration.
func ValidEventName(name EventName) bool {
	for _, n := range AllEvents {
		if n == name {
			return true
		}
	}
	return false
}

// ValidSubscribedEvent reports whether name may appear in a subscription's
// event list: any emittable name or the wildcard.
func ValidSubscribedEvent(name string) bool {
	return name == EventWildcard || ValidEventName(EventName(name))
}

// Event is an ephemeral notification of a domain state change. The payload is
// snapshotted at emit time; it never refers back to live domain objects.
type Event struct {
	Name       EventName       `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}
