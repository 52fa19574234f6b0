package indexer

import (
	"context"
	"errors"
	"time"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// retryPolicy retries a failing call with a doubling delay.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	// onRetry is called before sleeping with the failed attempt (1-based).
	onRetry func(attempt int, err error, delay time.Duration)
}

func newRetryPolicy(maxRetries int, baseDelay time.Duration) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}
	return retryPolicy{maxRetries: maxRetries, baseDelay: baseDelay}
}

// delay returns the wait after the given failed attempt.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// do runs fn until it succeeds, the retries are spent or ctx ends.
// Cancellation is never retried.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > p.maxRetries || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}

		wait := p.delay(attempt)
		if p.onRetry != nil {
			p.onRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
