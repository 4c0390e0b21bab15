package storeguard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestDoPassesThroughSuccess(t *testing.T) {
	guard := New(Config{})

	calls := 0
	err := guard.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	guard := New(Config{MaxRetries: 3, RetryBackoff: time.Millisecond})

	calls := 0
	err := guard.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("serialization conflict: %w", ErrRetryable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do should succeed on the third attempt: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoBoundsRetries(t *testing.T) {
	guard := New(Config{MaxRetries: 3, RetryBackoff: time.Millisecond})

	calls := 0
	err := guard.Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("still conflicting: %w", ErrRetryable)
	})
	if !errors.Is(err, ErrRetryable) {
		t.Fatalf("expected the last retryable error back, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}

	// Contention is not a store failure; the breaker stays closed.
	if guard.State() != "closed" {
		t.Fatalf("breaker should stay closed after contention, state %s", guard.State())
	}
}

func TestDoDoesNotRetryPlainErrors(t *testing.T) {
	guard := New(Config{MaxRetries: 3, RetryBackoff: time.Millisecond})

	calls := 0
	err := guard.Do(context.Background(), func() error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("plain errors should not be retried, got %d calls", calls)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	guard := New(Config{MaxFailures: 3, OpenTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		guard.Do(ctx, func() error { return errBoom })
	}

	if guard.State() != "open" {
		t.Fatalf("breaker should be open after 3 failures, state %s", guard.State())
	}

	// Calls are now rejected without reaching the store.
	calls := 0
	err := guard.Do(ctx, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("open breaker should return ErrUnavailable, got %v", err)
	}
	if calls != 0 {
		t.Fatal("open breaker must not invoke the store")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	guard := New(Config{MaxFailures: 2, OpenTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	guard.Do(ctx, func() error { return errBoom })
	guard.Do(ctx, func() error { return errBoom })

	if guard.State() != "open" {
		t.Fatalf("expected open, got %s", guard.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := guard.Do(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe after open timeout should run: %v", err)
	}
	if guard.State() != "closed" {
		t.Fatalf("breaker should close after a successful probe, state %s", guard.State())
	}
}

func TestIsFailureExcludesDomainOutcomes(t *testing.T) {
	errExhausted := errors.New("uses exhausted")

	guard := New(Config{
		MaxFailures: 2,
		IsFailure:   func(err error) bool { return !errors.Is(err, errExhausted) },
	})
	ctx := context.Background()

	// Domain outcomes flow back through Do but never trip the breaker.
	for i := 0; i < 10; i++ {
		if err := guard.Do(ctx, func() error { return errExhausted }); !errors.Is(err, errExhausted) {
			t.Fatalf("expected the domain error back, got %v", err)
		}
	}

	if guard.State() != "closed" {
		t.Fatalf("domain outcomes should not open the breaker, state %s", guard.State())
	}
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	guard := New(Config{MaxRetries: 3, RetryBackoff: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := guard.Do(ctx, func() error {
		return fmt.Errorf("conflict: %w", ErrRetryable)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled during backoff, got %v", err)
	}
}
