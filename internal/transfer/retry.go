package transfer

import (
	"context"
	"time"
)

// RetryPolicy is a bounded-attempt policy with exponential backoff.
// Non-retriable errors stop the loop immediately.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy matches the transfer defaults: five attempts
// starting at half a second between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialBackoff: 500 * time.Millisecond}
}

// Do runs fn until it succeeds, runs out of attempts, returns a
// non-retriable error, or the context is cancelled.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	backoff := p.InitialBackoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retriable(err) || attempt == attempts {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}
