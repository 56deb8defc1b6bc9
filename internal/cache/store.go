// Package cache provides the tenant-scoped caching layer used for
// conversation history, customer profiles, and personalization configs:
// a Redis-backed Store with an in-memory TTL fallback for local
// development or Redis outages, following the same cache-then-DB-fallback
// idiom the rest of this service uses.
package cache

import (
	"context"
	"time"
)

// Store is the minimal byte-oriented cache contract both backends
// satisfy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
