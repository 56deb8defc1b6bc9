package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iago/extensao-whatsapp-back/internal/http/handlers"
	"github.com/iago/extensao-whatsapp-back/internal/http/middleware"
)

// RouterDependencies wires the handlers and middleware the ingress
// surface exposes: the signed webhook, health, Prometheus metrics, and
// an admin dead-letter requeue endpoint.
type RouterDependencies struct {
	Webhook        *handlers.WebhookAPI
	Health         *handlers.HealthAPI
	Admin          *handlers.AdminAPI
	Registerer     prometheus.Gatherer
	Logger         *zap.Logger
	AdminToken     string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.Health.Health)
	mux.HandleFunc("/webhook/whaticket", deps.Webhook.Whaticket)
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Registerer, promhttp.HandlerOpts{}))

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/admin/dead-letter/requeue", deps.Admin.RequeueDeadLetter)
	adminHandler := middleware.Auth(deps.AdminToken)(adminMux)
	mux.Handle("/admin/", adminHandler)

	handler := http.Handler(mux)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
