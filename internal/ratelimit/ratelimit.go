// Package ratelimit provides Redis-based request limiting, tenant-scoped so
// one contract cannot starve another's share of the server's write capacity.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter enforces a fixed request budget per key per window using Redis
// INCR, failing open if Redis is unreachable so the tree stays available.
type Limiter struct {
	redis *redis.Client
	log   zerolog.Logger
}

// NewLimiter builds a Limiter. A nil client disables limiting entirely.
func NewLimiter(client *redis.Client, logger zerolog.Logger) *Limiter {
	return &Limiter{redis: client, log: logger}
}

// Allow reports whether the caller identified by key may proceed, given a
// budget of limit requests per window. It never blocks the caller: a Redis
// failure or a disabled limiter both allow the request through.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.redis == nil {
		return true
	}

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, failing open")
		return true
	}
	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}
	return int(count) <= limit
}

// TenantWriteKey scopes a rate-limit counter to a tenant's write traffic.
func TenantWriteKey(contractHex string) string {
	return fmt.Sprintf("ratelimit:write:%s", contractHex)
}
