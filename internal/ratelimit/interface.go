package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// Limiter counts requests per key within fixed, non-overlapping windows.
//
// Fixed windows admit up front: a burst straddling a window boundary can
// see up to 2x the nominal rate. That is inherent to the algorithm and a
// deliberate simplicity trade-off, not a bug.
type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)

	Limit() int

	Window() time.Duration
}
