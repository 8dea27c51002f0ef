// Package ratelimit implements a Redis-backed fixed-window rate limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter settings.
type Config struct {
	// Requests allowed per key in each window.
	Requests int
	Window   time.Duration
	// KeyPrefix namespaces counters in Redis.
	KeyPrefix string
}

// Limiter counts requests per key in fixed windows shared by every instance
// that talks to the same Redis.
type Limiter struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// New constructs a Limiter.
func New(client *redis.Client, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit:"
	}
	return &Limiter{client: client, cfg: cfg, now: time.Now}
}

// Allow counts one request for key. When the window's budget is spent it
// returns false and how long until the window resets. A nil Limiter allows
// everything.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.client == nil {
		return true, 0, nil
	}

	now := l.now()
	window := now.UnixNano() / int64(l.cfg.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.cfg.KeyPrefix, key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	if incr.Val() <= int64(l.cfg.Requests) {
		return true, 0, nil
	}
	resetAt := time.Unix(0, (window+1)*int64(l.cfg.Window))
	return false, resetAt.Sub(now), nil
}

// Ping checks connectivity.
func (l *Limiter) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Ping(ctx).Err()
}
