// Package ratelimit implements the per-tenant sliding-window limiter
// that gates inbound webhook traffic, grounded on the upstream service's
// Redis sorted-set scheme: each request's arrival timestamp is a member
// of a ZSET scored by that same timestamp, members older than the
// window are trimmed before counting.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

// Limiter enforces a fixed request count within a sliding window, scoped
// by an arbitrary namespaced key.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow records this request's arrival under key and reports whether it
// may proceed — matching the upstream implementation, the attempt is
// recorded unconditionally (rejected requests count too) and the limit
// is evaluated against the post-insert count.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	nowScore := float64(now.UnixNano()) / 1e9
	windowStart := nowScore - l.window.Seconds()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	member := fmt.Sprintf("%f", nowScore)
	pipe.ZAdd(ctx, key, redis.Z{Score: nowScore, Member: member})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: pipeline exec: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: read count: %w", err)
	}

	return count <= int64(l.limit), nil
}

// AllowIP checks the tenant+IP bucket.
func (l *Limiter) AllowIP(ctx context.Context, tenant tenancy.Context, ip string) (bool, error) {
	return l.Allow(ctx, tenant.NamespacedKey("rl", "ip", ip))
}

// AllowNumber checks the tenant+customer-number bucket.
func (l *Limiter) AllowNumber(ctx context.Context, tenant tenancy.Context, number string) (bool, error) {
	return l.Allow(ctx, tenant.NamespacedKey("rl", "num", number))
}
