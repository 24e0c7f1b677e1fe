package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/pkg/response"
)

const (
	redisTimeout = 200 * time.Millisecond
	// maxLocalKeys bounds the in-process limiter table.
	maxLocalKeys = 10000
)

// RateLimiter is a fixed-window limiter keyed by client address. Counters
// live in redis when one is configured; otherwise, or when redis errors, a
// per-process token bucket takes over.
type RateLimiter struct {
	redis   *redis.Client
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	local map[string]*localEntry
	now   func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(redisClient *redis.Client, m *metrics.Metrics, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		redis:   redisClient,
		metrics: m,
		logger:  logger,
		local:   make(map[string]*localEntry),
		now:     time.Now,
	}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, c.IP())

		allowed, remaining, retryAfter := rl.allow(c.UserContext(), key, maxRequests, window)
		if !allowed {
			rl.metrics.RateLimited(keyPrefix)
			c.Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		return c.Next()
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, int, time.Duration) {
	if rl.redis != nil {
		allowed, remaining, retryAfter, err := rl.allowRedis(ctx, key, maxRequests, window)
		if err == nil {
			return allowed, remaining, retryAfter
		}
		rl.logger.Warn("redis rate limit unavailable, using local limiter", zap.String("key", key), zap.Error(err))
	}
	return rl.allowLocal(key, maxRequests, window)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, int, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, 0, err
	}

	// Set expiration on first request
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, 0, err
		}
	}

	if count > int64(maxRequests) {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return false, 0, ttl, nil
	}
	return true, maxRequests - int(count), 0, nil
}

func (rl *RateLimiter) allowLocal(key string, maxRequests int, window time.Duration) (bool, int, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	e, ok := rl.local[key]
	if !ok {
		if len(rl.local) >= maxLocalKeys {
			rl.pruneLocked(now, window)
		}
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(maxRequests)), maxRequests)}
		rl.local[key] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int(e.limiter.TokensAt(now)), 0
}

// pruneLocked drops idle keys. Caller holds rl.mu.
func (rl *RateLimiter) pruneLocked(now time.Time, window time.Duration) {
	for k, e := range rl.local {
		if now.Sub(e.lastSeen) > window {
			delete(rl.local, k)
		}
	}
}

// JobsLimit limits job submissions per client address per minute
func (rl *RateLimiter) JobsLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("jobs", maxPerMin, time.Minute)
}

// QuickLimit limits the synchronous heuristic endpoint per minute
func (rl *RateLimiter) QuickLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("quick", maxPerMin, time.Minute)
}
