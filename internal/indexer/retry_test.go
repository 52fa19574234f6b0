package indexer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsAfterMaxRetries(t *testing.T) {
	calls := 0
	var retried []int
	policy := newRetryPolicy(2, time.Millisecond)
	policy.onRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := policy.do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("unexpected retry callbacks %v", retried)
	}
}

func TestRetrySucceedsAfterFailure(t *testing.T) {
	calls := 0
	err := newRetryPolicy(3, time.Millisecond).do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("timeout")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got %v after %d calls", err, calls)
	}
}

func TestRetryDoesNotRetryCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := newRetryPolicy(5, time.Millisecond).do(ctx, func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	policy := newRetryPolicy(10, 500*time.Millisecond)
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second}
	for i, d := range want {
		if got := policy.delay(i + 1); got != d {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, d, got)
		}
	}
	if got := policy.delay(20); got != maxRetryDelay {
		t.Fatalf("expected cap %s, got %s", maxRetryDelay, got)
	}
}
