package domain

import "time"

// Subscription is a registered third-party endpoint plus the event names it
// wants to receive. The delivery subsystem only reads it; management writes
// go through the store.
type Subscription struct {
	ID          string    `json:"id"`
	TargetURL   string    `json:"target_url"`
	Secret      string    `json:"secret,omitempty"`
	Events      []string  `json:"events"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Matches reports whether the subscription listens to the given event name,
// either exactly or via the wildcard.
func (s *Subscription) Matches(name EventName) bool {
	for _, e := range s.Events {
		if e == EventWildcard || e == string(name) {
			return true
		}
	}
	return false
}

type CreateSubscriptionRequest struct {
	TargetURL   string   `json:"target_url"`
	Events      []string `json:"events"`
	Description string   `json:"description,omitempty"`
}

type UpdateSubscriptionRequest struct {
	TargetURL   *string   `json:"target_url,omitempty"`
	Events      *[]string `json:"events,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	Description *string   `json:"description,omitempty"`
}
