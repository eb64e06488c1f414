package app

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyGuard implements IdempotencyGuard on a shared Redis
// instance so callback replay detection works across service replicas. The
// claim is a SETNX with a TTL; an expired claim simply falls through to the
// store-level guarded updates, which stay authoritative.
type RedisIdempotencyGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisIdempotencyGuard {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "ispb:idempotency"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisIdempotencyGuard{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

// Claim reports whether key is seen for the first time.
func (g *RedisIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}

	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return true, nil
	}

	first, err := g.client.SetNX(ctx, g.prefix+":"+normalizedKey, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return first, nil
}
