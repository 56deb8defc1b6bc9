package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/iago/extensao-whatsapp-back/internal/metrics"
)

// Pinger is satisfied by every dependency the health check verifies:
// the postgres pool, the redis client, and the worker heartbeat
// tracker all expose a matching Ping method.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthAPI reports liveness as described for GET /healthz: ok only
// when every configured dependency answers within its own check.
type HealthAPI struct {
	db      Pinger
	cache   Pinger
	workers Pinger
	metrics *metrics.Collector
}

func NewHealthAPI(db, cache, workers Pinger, metricsCollector *metrics.Collector) *HealthAPI {
	return &HealthAPI{db: db, cache: cache, workers: workers, metrics: metricsCollector}
}

type dependencyStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func (api *HealthAPI) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	status := "ok"
	dependencies := map[string]dependencyStatus{}

	check := func(name string, pinger Pinger) {
		if pinger == nil {
			return
		}
		start := time.Now()
		err := pinger.Ping(r.Context())
		entry := dependencyStatus{LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			entry.Status = "unavailable"
			entry.Error = err.Error()
			status = "degraded"
			if api.metrics != nil {
				api.metrics.HealthcheckFailures.WithLabelValues(name).Inc()
			}
		} else {
			entry.Status = "ok"
		}
		dependencies[name] = entry
	}

	check("database", api.db)
	check("cache", api.cache)
	check("workers", api.workers)

	statusCode := http.StatusOK
	if status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":       status,
		"dependencies": dependencies,
	})
}
