// Package heartbeat tracks worker liveness for the /healthz endpoint:
// every live worker touches a shared timestamp on a timer, and the
// health check treats the pool as alive as long as at least one touch
// landed recently.
package heartbeat

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Tracker records the most recent worker tick and reports whether it is
// still fresh enough to call the pool alive.
type Tracker struct {
	maxAge  time.Duration
	lastUTC atomic.Int64
}

// New builds a Tracker that considers itself healthy as long as some
// worker has touched it within maxAge.
func New(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = 180 * time.Second
	}
	t := &Tracker{maxAge: maxAge}
	t.lastUTC.Store(time.Now().UnixNano())
	return t
}

// Touch records that a worker is alive right now. Call it once per
// poll-loop iteration from every running worker goroutine.
func (t *Tracker) Touch() {
	t.lastUTC.Store(time.Now().UnixNano())
}

// Ping satisfies handlers.Pinger: it fails once the last touch is older
// than maxAge, meaning no worker has polled the queue recently.
func (t *Tracker) Ping(ctx context.Context) error {
	last := time.Unix(0, t.lastUTC.Load())
	age := time.Since(last)
	if age > t.maxAge {
		return fmt.Errorf("no worker heartbeat in %s (max %s)", age.Round(time.Second), t.maxAge)
	}
	return nil
}
