package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/crmkit/webhook-notifier/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEmit_InvokesListenersInOrder(t *testing.T) {
	b := New(testLogger())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if err := b.Subscribe(domain.EventDealCreated, func(ctx context.Context, evt domain.Event) {
			order = append(order, i)
		}); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
	}

	b.Emit(context.Background(), domain.EventDealCreated, map[string]string{"deal_id": "d1"})

	if len(order) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("invocation %d was listener %d, want %d", i, got, i)
		}
	}
}

func TestEmit_OnlyMatchingListeners(t *testing.T) {
	b := New(testLogger())

	var dealCalls, contactCalls int
	b.Subscribe(domain.EventDealCreated, func(ctx context.Context, evt domain.Event) { dealCalls++ })
	b.Subscribe(domain.EventContactCreated, func(ctx context.Context, evt domain.Event) { contactCalls++ })

	b.Emit(context.Background(), domain.EventDealCreated, map[string]string{"deal_id": "d1"})

	if dealCalls != 1 {
		t.Errorf("deal listener called %d times, want 1", dealCalls)
	}
	if contactCalls != 0 {
		t.Errorf("contact listener called %d times, want 0", contactCalls)
	}
}

func TestEmit_PanicDoesNotAbortSiblings(t *testing.T) {
	b := New(testLogger())

	var secondCalled bool
	b.Subscribe(domain.EventTaskCompleted, func(ctx context.Context, evt domain.Event) {
		panic("listener blew up")
	})
	b.Subscribe(domain.EventTaskCompleted, func(ctx context.Context, evt domain.Event) {
		secondCalled = true
	})

	// Must not panic out of Emit.
	b.Emit(context.Background(), domain.EventTaskCompleted, map[string]string{"task_id": "t1"})

	if !secondCalled {
		t.Error("second listener should run even when the first panics")
	}
}

func TestSubscribe_UnknownNameRejected(t *testing.T) {
	b := New(testLogger())

	err := b.Subscribe(domain.EventName("no_such_event"), func(ctx context.Context, evt domain.Event) {})
	if err == nil {
		t.Fatal("expected error subscribing to unknown event name")
	}
}

func TestEmit_UnknownNameIsDropped(t *testing.T) {
	b := New(testLogger())

	var called bool
	b.Subscribe(domain.EventDealCreated, func(ctx context.Context, evt domain.Event) { called = true })

	b.Emit(context.Background(), domain.EventName("bogus"), nil)

	if called {
		t.Error("no listener should fire for an unknown event name")
	}
}

func TestEmit_PayloadIsSnapshot(t *testing.T) {
	b := New(testLogger())

	var got json.RawMessage
	b.Subscribe(domain.EventContactUpdated, func(ctx context.Context, evt domain.Event) {
		got = evt.Payload
	})

	payload := map[string]string{"contact_id": "c1", "email": "old@example.com"}
	b.Emit(context.Background(), domain.EventContactUpdated, payload)

	// Mutating the source after emit must not affect the delivered snapshot.
	payload["email"] = "new@example.com"

	var decoded map[string]string
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if decoded["email"] != "old@example.com" {
		t.Errorf("snapshot email = %q, want %q", decoded["email"], "old@example.com")
	}
}

func TestEmit_ReentrantEmitDoesNotDeadlock(t *testing.T) {
	b := New(testLogger())

	var chained bool
	b.Subscribe(domain.EventDealCreated, func(ctx context.Context, evt domain.Event) {
		// A listener may itself cause further events.
		b.Emit(ctx, domain.EventTaskCreated, map[string]string{"task_id": "follow-up"})
	})
	b.Subscribe(domain.EventTaskCreated, func(ctx context.Context, evt domain.Event) {
		chained = true
	})

	done := make(chan struct{})
	go func() {
		b.Emit(context.Background(), domain.EventDealCreated, map[string]string{"deal_id": "d1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant emit deadlocked")
	}

	if !chained {
		t.Error("chained listener should have fired")
	}
}
