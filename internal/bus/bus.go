package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crmkit/webhook-notifier/internal/domain"
)

// Listener receives one event. It is invoked synchronously by Emit; listeners
// that need to do real work must hand off to their own goroutine.
type Listener func(ctx context.Context, evt domain.Event)

// Bus is an in-process publish/subscribe mechanism keyed by the fixed event
// enumeration. It is constructed once at startup and injected wherever code
// needs to emit or listen — there is no package-level instance.
type Bus struct {
	mu        sync.RWMutex
	listeners map[domain.EventName][]Listener
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		listeners: make(map[domain.EventName][]Listener),
		logger:    logger,
	}
}

// Subscribe registers a listener for the given event name. Unknown names are
// rejected so misconfigured wiring fails at startup, not at emit time.
func (b *Bus) Subscribe(name domain.EventName, l Listener) error {
	if !domain.ValidEventName(name) {
		return fmt.Errorf("subscribing to unknown event %q", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], l)
	return nil
}

// Emit marshals the payload once — this is the snapshot delivered everywhere —
// and invokes every listener registered for the event name, in registration
// order. A listener panic is logged and never aborts siblings or the emitter.
// No lock is held across listener invocation, so listeners may emit further
// events without deadlocking.
func (b *Bus) Emit(ctx context.Context, name domain.EventName, payload any) {
	if !domain.ValidEventName(name) {
		b.logger.Error("emit of unknown event name", "event", name)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to marshal event payload", "event", name, "error", err)
		return
	}

	evt := domain.Event{
		Name:       name,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}

	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners[name]))
	copy(listeners, b.listeners[name])
	b.mu.RUnlock()

	for _, l := range listeners {
		b.invoke(ctx, l, evt)
	}
}

// invoke runs one listener behind a recover boundary.
func (b *Bus) invoke(ctx context.Context, l Listener, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", "event", evt.Name, "panic", r)
		}
	}()
	l(ctx, evt)
}
