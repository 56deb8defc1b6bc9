package heartbeat

import (
	"context"
	"testing"
	"time"
)

func TestTrackerHealthyWhenFresh(t *testing.T) {
	tracker := New(100 * time.Millisecond)
	if err := tracker.Ping(context.Background()); err != nil {
		t.Fatalf("expected fresh tracker to be healthy, got %v", err)
	}
}

func TestTrackerUnhealthyAfterMaxAge(t *testing.T) {
	tracker := New(30 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if err := tracker.Ping(context.Background()); err == nil {
		t.Fatal("expected stale tracker to report unhealthy")
	}
}

func TestTrackerTouchRefreshesHealth(t *testing.T) {
	tracker := New(50 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	tracker.Touch()
	time.Sleep(30 * time.Millisecond)
	if err := tracker.Ping(context.Background()); err != nil {
		t.Fatalf("expected touch to keep tracker healthy, got %v", err)
	}
}
