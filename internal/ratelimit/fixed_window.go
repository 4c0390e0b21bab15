package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/arkana-app/access-api/internal/storage"
	"github.com/rs/zerolog/log"
)

// RedisLimiter is a fixed-window limiter backed by redis, for deployments
// where limits must be shared across instances.
type RedisLimiter struct {
	redis  *storage.RedisClient
	limit  int
	window time.Duration
}

func NewRedis(redis *storage.RedisClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:  redis,
		limit:  limit,
		window: window,
	}
}

// bucket maps an instant to its window ordinal and the window's end.
// Millisecond arithmetic, so sub-second windows work.
func (l *RedisLimiter) bucket(now time.Time) (int64, time.Time) {
	windowMs := l.window.Milliseconds()
	ordinal := now.UnixMilli() / windowMs

	return ordinal, time.UnixMilli((ordinal+1)*windowMs)
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	currentWindow, resetAt := l.bucket(time.Now())
	redisKey := fmt.Sprintf("ratelimit:fixed:%s:%d", key, currentWindow)

	count, err := l.redis.Incr(ctx, redisKey)
	if err != nil {
		return Decision{}, err
	}

	if count == 1 {
		// Without the TTL the counter never resets and the key denies
		// forever once over the limit.
		if err := l.redis.Expire(ctx, redisKey, l.window); err != nil {
			log.Error().Err(err).Str("key", redisKey).Msg("failed to set rate limit window expiry")
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(l.limit) {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: time.Until(resetAt),
		}, nil
	}

	return Decision{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (l *RedisLimiter) Limit() int {
	return l.limit
}

func (l *RedisLimiter) Window() time.Duration {
	return l.window
}
