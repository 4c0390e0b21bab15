// Package storeguard protects calls to the backing store with a circuit
// breaker and a small bounded retry for contended conditional updates.
// Callers fail closed: when the breaker is open or retries are exhausted,
// the operation is denied rather than optimistically allowed, since the
// guarded resources (code uses, wave seats) are capacity-limited.
package storeguard

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrUnavailable is returned when the breaker is open and calls are
	// being rejected without reaching the store.
	ErrUnavailable = errors.New("store guard: circuit open")

	// ErrRetryable marks an error as contention that may clear on retry.
	// Wrap store errors with this to opt in to the retry loop.
	ErrRetryable = errors.New("store guard: retryable conflict")
)

type Config struct {
	MaxFailures     int           // failures before opening, default 5
	OpenTimeout     time.Duration // how long to stay open, default 30s
	HalfOpenSuccess int           // successes in half-open to close, default 1
	MaxRetries      int           // attempts for retryable errors, default 3
	RetryBackoff    time.Duration // pause between attempts, default 25ms

	// IsFailure decides whether an error counts against the breaker.
	// Domain outcomes (code exhausted, duplicate email) come back through
	// the same call path but mean the store is healthy; exclude them here.
	// Nil counts every error.
	IsFailure func(error) bool
}

// Guard wraps store access for one backend.
type Guard struct {
	mu              sync.Mutex
	state           state
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	maxFailures     int
	openTimeout     time.Duration
	halfOpenSuccess int
	maxRetries      int
	retryBackoff    time.Duration
	isFailure       func(error) bool
}

func New(cfg Config) *Guard {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(error) bool { return true }
	}

	return &Guard{
		state:           stateClosed,
		maxFailures:     cfg.MaxFailures,
		openTimeout:     cfg.OpenTimeout,
		halfOpenSuccess: cfg.HalfOpenSuccess,
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		isFailure:       cfg.IsFailure,
	}
}

// Do runs fn under the breaker. Errors wrapping ErrRetryable are retried
// up to MaxRetries times with backoff; the last error is returned if every
// attempt conflicts. Validation outcomes should not be marked retryable -
// they return immediately and count as successes for breaker purposes only
// when the store itself responded.
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	if err := g.admit(); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				g.onFailure()
				return ctx.Err()
			case <-time.After(g.retryBackoff):
			}
		}

		err = fn()
		if err == nil {
			g.onSuccess()
			return nil
		}

		if !errors.Is(err, ErrRetryable) {
			if g.isFailure(err) {
				g.onFailure()
			} else {
				g.onSuccess()
			}
			return err
		}
	}

	// Retries exhausted on a contended update. The store is healthy, so
	// this does not trip the breaker.
	g.onSuccess()
	return err
}

func (g *Guard) admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateOpen {
		if time.Since(g.lastFailureTime) > g.openTimeout {
			g.state = stateHalfOpen
			g.successCount = 0
		} else {
			return ErrUnavailable
		}
	}

	return nil
}

func (g *Guard) onFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failureCount++
	g.lastFailureTime = time.Now()

	if g.state == stateHalfOpen {
		g.state = stateOpen
		g.successCount = 0
	} else if g.failureCount >= g.maxFailures {
		g.state = stateOpen
	}
}

func (g *Guard) onSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case stateHalfOpen:
		g.successCount++
		if g.successCount >= g.halfOpenSuccess {
			g.state = stateClosed
			g.failureCount = 0
		}
	case stateClosed:
		g.failureCount = 0
	}
}

// State returns the current breaker state, for health reporting.
func (g *Guard) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.String()
}
