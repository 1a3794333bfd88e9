package middlewares

import (
	"context"
	"time"

	"github.com/geocoder89/holocron/internal/redisclient"
)

// RedisRateLimiter shares fixed-window counters across instances.
type RedisRateLimiter struct {
	client *redisclient.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redisclient.Client, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.client.IncrWindow(ctx, l.prefix+key, l.window)
	if err != nil {
		return Decision{}, err
	}

	if count > int64(l.limit) {
		return Decision{Allowed: false, Limit: l.limit, RetryAfter: ttl}, nil
	}

	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - int(count)}, nil
}
