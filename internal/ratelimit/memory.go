package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Limits are
// approximate per-instance in a multi-instance deployment; use the redis
// limiter when limits must be shared.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*record
	limit   int
	window  time.Duration

	now  func() time.Time
	stop chan struct{}
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		records: make(map[string]*record),
		limit:   limit,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go l.sweep()

	return l
}

func (l *MemoryLimiter) Check(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]

	// Fresh key, or the window has lapsed - replace the record outright.
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(l.window)}
		l.records[key] = rec

		return Decision{
			Allowed:   true,
			Remaining: l.limit - 1,
			ResetAt:   rec.resetAt,
		}, nil
	}

	if rec.count >= l.limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    rec.resetAt,
			RetryAfter: rec.resetAt.Sub(now),
		}, nil
	}

	rec.count++

	return Decision{
		Allowed:   true,
		Remaining: l.limit - rec.count,
		ResetAt:   rec.resetAt,
	}, nil
}

func (l *MemoryLimiter) Limit() int {
	return l.limit
}

func (l *MemoryLimiter) Window() time.Duration {
	return l.window
}

// Stop ends the background sweep. Safe to call once.
func (l *MemoryLimiter) Stop() {
	close(l.stop)
}

// Periodically drops expired records so the map stays bounded by the
// number of distinct keys seen within one window.
func (l *MemoryLimiter) sweep() {
	interval := l.window
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.stop:
			return
		}
	}
}

func (l *MemoryLimiter) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, key)
		}
	}
}
