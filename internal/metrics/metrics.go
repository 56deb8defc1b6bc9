// Package metrics centralizes the Prometheus series the pipeline
// updates, grounded on the blitzy message-service reference (the only
// pack source that wires promauto/client_golang), adapted from a single
// message-throughput gauge to one series per pipeline concern. Not every
// registered series is updated: queue_depth, dead_letter_total,
// llm_circuit_breaker_open, conversation_sentiment_score,
// conversation_intention_total and conversation_feedback_total are
// registered but no stage writes to them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups every registered series so callers pass one value
// through constructors instead of a dozen globals.
type Collector struct {
	LLMErrorRate          *prometheus.GaugeVec
	TokenUsageTotal       *prometheus.CounterVec
	FallbackTransfers     *prometheus.CounterVec
	TaskLatency           *prometheus.HistogramVec
	SentimentScore        *prometheus.GaugeVec
	IntentionTotal        *prometheus.CounterVec
	FeedbackTotal         *prometheus.CounterVec
	QueueDepth            *prometheus.GaugeVec
	DeadLetterTotal       *prometheus.CounterVec
	DeliveryStatusTotal   *prometheus.CounterVec
	CircuitBreakerOpen    *prometheus.GaugeVec
	RateLimitRejections   *prometheus.CounterVec
	WebhookSignatureFails *prometheus.CounterVec
	WebhookReceivedTotal  *prometheus.CounterVec
	HealthcheckFailures   *prometheus.CounterVec
}

// New registers every series against the given registry. Pass
// prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests to avoid duplicate-registration
// panics across test runs.
func New(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)
	return &Collector{
		LLMErrorRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llm_error_rate",
			Help: "Set to 1 when a tenant's LLM call fails after its last retry; not reset on success.",
		}, []string{"tenant"}),
		TokenUsageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_token_usage_total",
			Help: "Tokens in generated LLM replies, approximated by whitespace-delimited word count.",
		}, []string{"tenant", "kind"}),
		FallbackTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fallback_transfers_total",
			Help: "Number of replies served from a fallback path (injection guard, LLM failure, or an empty rendered template).",
		}, []string{"tenant"}),
		TaskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_latency_seconds",
			Help:    "End-to-end worker processing latency per message.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tenant", "outcome"}),
		SentimentScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conversation_sentiment_score",
			Help: "Most recent sentiment score observed per tenant.",
		}, []string{"tenant"}),
		IntentionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_intention_total",
			Help: "Count of detected intentions per tenant.",
		}, []string{"tenant", "intention"}),
		FeedbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_feedback_total",
			Help: "Count of detected feedback signals per tenant.",
		}, []string{"tenant", "polarity"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Pending entries in a tenant's primary stream.",
		}, []string{"tenant"}),
		DeadLetterTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dead_letter_total",
			Help: "Messages routed to the dead-letter stream.",
		}, []string{"tenant"}),
		DeliveryStatusTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_status_total",
			Help: "Delivery attempts by terminal status.",
		}, []string{"tenant", "status"}),
		CircuitBreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llm_circuit_breaker_open",
			Help: "1 when the per-tenant LLM circuit breaker is open, else 0.",
		}, []string{"tenant"}),
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the sliding-window rate limiter.",
		}, []string{"tenant", "scope"}),
		WebhookSignatureFails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Webhook requests rejected for a missing or invalid HMAC signature.",
		}, []string{"tenant"}),
		WebhookReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_received_total",
			Help: "Inbound webhook requests by terminal ingress status.",
		}, []string{"company", "status"}),
		HealthcheckFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcheck_failures_total",
			Help: "Failed /healthz dependency checks by component.",
		}, []string{"component"}),
	}
}
