package ratelimit

import (
	"testing"
	"time"
)

func TestRedisBucketSubSecondWindow(t *testing.T) {
	limiter := NewRedis(nil, 10, 500*time.Millisecond)

	now := time.UnixMilli(1_700_000_000_250)

	ordinal, resetAt := limiter.bucket(now)
	if ordinal != 3_400_000_000 {
		t.Fatalf("unexpected window ordinal %d", ordinal)
	}
	if got := resetAt.UnixMilli(); got != 1_700_000_000_500 {
		t.Fatalf("expected reset at window end 1700000000500, got %d", got)
	}
}

func TestRedisBucketAdvancesPerWindow(t *testing.T) {
	limiter := NewRedis(nil, 10, time.Minute)

	now := time.UnixMilli(1_700_000_000_000)

	first, firstReset := limiter.bucket(now)
	same, _ := limiter.bucket(now.Add(30 * time.Second))
	next, _ := limiter.bucket(now.Add(61 * time.Second))

	if first != same {
		t.Fatal("instants within one window should share a bucket")
	}
	if next != first+1 {
		t.Fatalf("next window should be ordinal %d, got %d", first+1, next)
	}
	if !firstReset.After(now) || firstReset.Sub(now) > time.Minute {
		t.Fatalf("reset should fall within the window, got %v after now", firstReset.Sub(now))
	}
}
