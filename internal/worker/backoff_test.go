package worker

import (
	"testing"
	"time"
)

func TestDefaultRetryPolicy_BackoffSequence(t *testing.T) {
	p := DefaultRetryPolicy()

	// Gaps after attempts 1..4 of a 5-attempt budget.
	want := []time.Duration{
		5 * time.Second,
		20 * time.Second,
		80 * time.Second,
		320 * time.Second,
	}

	for i, expected := range want {
		attempt := i + 1
		if got := p.Backoff(attempt); got != expected {
			t.Errorf("Backoff(%d) = %s, want %s", attempt, got, expected)
		}
	}
}

func TestBackoff_StrictlyIncreasing(t *testing.T) {
	p := DefaultRetryPolicy()

	prev := time.Duration(0)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		d := p.Backoff(attempt)
		if d <= prev {
			t.Fatalf("Backoff(%d) = %s, not greater than previous %s", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoff_AttemptBelowOne(t *testing.T) {
	p := DefaultRetryPolicy()

	if got := p.Backoff(0); got != p.BaseDelay {
		t.Errorf("Backoff(0) = %s, want base delay %s", got, p.BaseDelay)
	}
}

func TestDefaultRetryPolicy_MaxAttempts(t *testing.T) {
	if got := DefaultRetryPolicy().MaxAttempts; got != 5 {
		t.Errorf("default max attempts = %d, want 5", got)
	}
}
