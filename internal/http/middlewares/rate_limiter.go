package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Decision is the outcome of counting one request against a window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LimitRecorder is satisfied by observability.Prom.
type LimitRecorder interface {
	RateLimited(limiter string)
}

// RateLimiter is an in-process fixed-window limiter. It is correct for a
// single instance; multi-instance deployments use RedisRateLimiter.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	limit     int
	clients   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweep(now)

	b, ok := rl.clients[key]

	if !ok || !now.Before(b.windowEnd) {
		rl.clients[key] = &clientBucket{
			count:     1,
			windowEnd: now.Add(rl.window),
		}
		return Decision{Allowed: true, Limit: rl.limit, Remaining: rl.limit - 1}, nil
	}

	if b.count >= rl.limit {
		return Decision{
			Allowed:    false,
			Limit:      rl.limit,
			RetryAfter: b.windowEnd.Sub(now),
		}, nil
	}

	b.count++

	return Decision{Allowed: true, Limit: rl.limit, Remaining: rl.limit - b.count}, nil
}

// sweep drops expired buckets at most once per window so the map does not
// grow with every client ever seen. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now

	for k, b := range rl.clients {
		if !now.Before(b.windowEnd) {
			delete(rl.clients, k)
		}
	}
}

// RateLimit enforces l for the key derived by keyFn. Limiter errors fail open.
func RateLimit(name string, l Limiter, keyFn func(*gin.Context) string, rec LimitRecorder, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		d, err := l.Allow(c.Request.Context(), name+":"+key)
		if err != nil {
			if log != nil {
				log.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request", "limiter", name, "err", err)
			}
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))

		if !d.Allowed {
			if rec != nil {
				rec.RateLimited(name)
			}

			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later.")
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// helper functions

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// For authenticated endpoints: rate limit by userID if available
func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)

	if ok {
		return "user:" + id
	}

	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP only for trusted proxies.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
