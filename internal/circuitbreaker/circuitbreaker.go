// Package circuitbreaker implements a Redis-shared circuit breaker for
// the LLM client, grounded on the upstream service's CircuitBreaker
// class: failures and open/closed state live in a single Redis key so
// every worker process observes the same breaker, shaped after the
// threshold/timeout knobs sony/gobreaker exposes in-process (open count
// threshold, cooldown), but backed by shared state since gobreaker
// itself cannot be shared across processes.
package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type state struct {
	Failures int   `json:"failures"`
	Open     bool  `json:"open"`
	OpenedAt int64 `json:"opened_at"`
}

// Breaker gates calls to an unreliable downstream behind a Redis-backed
// failure counter.
type Breaker struct {
	client           *redis.Client
	key              string
	failureThreshold int
	cooldown         time.Duration
}

func New(client *redis.Client, key string, failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{client: client, key: key, failureThreshold: failureThreshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. When the breaker is open but
// the cooldown has elapsed, it resets to closed (half-open probing is
// not modeled; the next call's outcome decides the new state directly).
func (b *Breaker) Allow(ctx context.Context) (bool, error) {
	current, err := b.load(ctx)
	if err != nil {
		return true, err
	}
	if !current.Open {
		return true, nil
	}
	if time.Since(time.UnixMilli(current.OpenedAt)) >= b.cooldown {
		current.Open = false
		current.Failures = 0
		return true, b.save(ctx, current)
	}
	return false, nil
}

// RecordSuccess closes the breaker and resets the failure count by
// deleting its key.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("circuitbreaker: reset: %w", err)
	}
	return nil
}

// RecordFailure increments the failure count and opens the breaker once
// the threshold is reached.
func (b *Breaker) RecordFailure(ctx context.Context) error {
	current, err := b.load(ctx)
	if err != nil {
		current = state{}
	}
	current.Failures++
	if current.Failures >= b.failureThreshold {
		current.Open = true
		current.OpenedAt = time.Now().UnixMilli()
	}
	return b.save(ctx, current)
}

func (b *Breaker) load(ctx context.Context) (state, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return state{}, nil
	}
	if err != nil {
		return state{}, fmt.Errorf("circuitbreaker: load: %w", err)
	}
	var decoded state
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return state{}, fmt.Errorf("circuitbreaker: decode: %w", err)
	}
	return decoded, nil
}

func (b *Breaker) save(ctx context.Context, current state) error {
	encoded, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("circuitbreaker: encode: %w", err)
	}
	if err := b.client.Set(ctx, b.key, encoded, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("circuitbreaker: save: %w", err)
	}
	return nil
}
