// Package ratelimit provides request throttling shared by the public
// endpoints. This is part of the platform layer and contains no business logic.
package ratelimit

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Local is a per-process token bucket limiter keyed by caller.
type Local struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

// NewLocal allows perMinute requests per key per minute, with a burst of the
// same size.
func NewLocal(perMinute int) *Local {
	return &Local{
		rate:  rate.Limit(float64(perMinute) / 60.0),
		burst: perMinute,
	}
}

// Allow implements Limiter. It never fails.
func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	limiter, ok := l.limiters.Load(key)
	if !ok {
		limiter, _ = l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	}
	return limiter.(*rate.Limiter).Allow(), nil
}

// Redis is a fixed-window counter shared by every API replica.
type Redis struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedis allows limit requests per key per window.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	slot := r.now().UnixNano() / int64(r.window)
	redisKey := fmt.Sprintf("%s%s:%d", r.prefix, key, slot)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("increment rate counter: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return false, fmt.Errorf("expire rate counter: %w", err)
		}
	}
	return count <= r.limit, nil
}

// NewRedisClient parses a redis:// or rediss:// URL.
func NewRedisClient(redisURL string, tlsInsecure bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if strings.HasPrefix(redisURL, "rediss://") && tlsInsecure {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed dev brokers
	}
	return redis.NewClient(opts), nil
}
