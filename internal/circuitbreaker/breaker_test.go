package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBreaker(t *testing.T, threshold int, cooldown time.Duration) *Breaker {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test:breaker", threshold, cooldown)
}

func TestBreakerAllowsWhenClosed(t *testing.T) {
	breaker := newTestBreaker(t, 3, time.Minute)

	allowed, err := breaker.Allow(context.Background())
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !allowed {
		t.Fatalf("expected a fresh breaker to allow calls")
	}
}

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	ctx := context.Background()
	breaker := newTestBreaker(t, 2, time.Minute)

	if err := breaker.RecordFailure(ctx); err != nil {
		t.Fatalf("record failure 1: %v", err)
	}
	allowed, err := breaker.Allow(ctx)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !allowed {
		t.Fatalf("expected breaker still closed before threshold reached")
	}

	if err := breaker.RecordFailure(ctx); err != nil {
		t.Fatalf("record failure 2: %v", err)
	}
	allowed, err = breaker.Allow(ctx)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatalf("expected breaker to open once failure threshold is reached")
	}
}

func TestBreakerResetsAfterCooldown(t *testing.T) {
	ctx := context.Background()
	breaker := newTestBreaker(t, 1, 10*time.Millisecond)

	if err := breaker.RecordFailure(ctx); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	allowed, err := breaker.Allow(ctx)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatalf("expected breaker open immediately after threshold failure")
	}

	time.Sleep(30 * time.Millisecond)

	allowed, err = breaker.Allow(ctx)
	if err != nil {
		t.Fatalf("allow after cooldown: %v", err)
	}
	if !allowed {
		t.Fatalf("expected breaker to close again once cooldown elapses")
	}
}

func TestBreakerRecordSuccessClosesAndResets(t *testing.T) {
	ctx := context.Background()
	breaker := newTestBreaker(t, 2, time.Minute)

	if err := breaker.RecordFailure(ctx); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := breaker.RecordSuccess(ctx); err != nil {
		t.Fatalf("record success: %v", err)
	}

	if err := breaker.RecordFailure(ctx); err != nil {
		t.Fatalf("record failure after reset: %v", err)
	}
	allowed, err := breaker.Allow(ctx)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !allowed {
		t.Fatalf("expected single post-success failure to not reopen the breaker")
	}
}
