package worker

import "time"

// RetryPolicy controls how many attempts a delivery gets and how the gaps
// between them grow.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int
}

// DefaultRetryPolicy gives 5 total attempts with gaps of 5s, 20s, 80s, 320s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
		Multiplier:  4,
	}
}

// Backoff returns the delay scheduled after the given attempt failed:
// BaseDelay * Multiplier^(attempt-1). attempt is 1-based.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(p.Multiplier)
	}
	return delay
}
