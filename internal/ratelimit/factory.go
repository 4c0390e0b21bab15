package ratelimit

import (
	"time"

	"github.com/arkana-app/access-api/internal/storage"
)

// NewLimiter builds a limiter for the configured store. An unknown store
// falls back to the in-memory limiter.
func NewLimiter(store string, redis *storage.RedisClient, limit int, window time.Duration) Limiter {
	switch store {
	case "redis":
		if redis != nil {
			return NewRedis(redis, limit, window)
		}
		return NewMemory(limit, window)
	case "memory":
		return NewMemory(limit, window)
	default:
		return NewMemory(limit, window)
	}
}
