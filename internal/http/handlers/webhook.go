package handlers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/metrics"
	"github.com/iago/extensao-whatsapp-back/internal/payload"
	"github.com/iago/extensao-whatsapp-back/internal/queue"
	"github.com/iago/extensao-whatsapp-back/internal/ratelimit"
	"github.com/iago/extensao-whatsapp-back/internal/repository"
	"github.com/iago/extensao-whatsapp-back/internal/security"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

// WebhookConfig carries the ingress-specific settings the handler needs
// at request time, kept separate from the repositories/producer so the
// handler's dependency list stays a flat struct.
type WebhookConfig struct {
	SharedSecret string
	SkewSeconds  int
	WebhookToken string
}

// WebhookAPI wires the signed-webhook ingress: tenant resolve, HMAC
// verify, optional token gate, payload normalize, per-tenant rate limit,
// job enqueue.
type WebhookAPI struct {
	tenants  repository.TenantsRepository
	producer queue.Producer
	limiter  *ratelimit.Limiter
	metrics  *metrics.Collector
	config   WebhookConfig
	logger   *zap.Logger
}

func NewWebhookAPI(
	tenants repository.TenantsRepository,
	producer queue.Producer,
	limiter *ratelimit.Limiter,
	metricsCollector *metrics.Collector,
	config WebhookConfig,
	logger *zap.Logger,
) *WebhookAPI {
	return &WebhookAPI{
		tenants:  tenants,
		producer: producer,
		limiter:  limiter,
		metrics:  metricsCollector,
		config:   config,
		logger:   logger,
	}
}

// Whaticket handles POST /webhook/whaticket: tenant resolve → HMAC
// verify → optional token check → payload normalize → rate-limit →
// enqueue → 202. An unknown tenant is rejected with 404 before the
// signature is checked.
func (api *WebhookAPI) Whaticket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "could not read request body")
		return
	}

	rawDomain := r.Header.Get("X-Company-Domain")
	if rawDomain == "" {
		rawDomain = r.Host
	}
	tenant, err := api.tenants.ResolveByDomain(r.Context(), rawDomain)
	if err != nil {
		api.recordReceived("unknown", "company_not_found")
		writeError(w, r, http.StatusNotFound, "company_not_found", "no tenant registered for this domain")
		return
	}
	tenantCtx := tenancy.FromTenant(*tenant)
	companyLabel := intToLabel(tenant.ID)

	if !security.VerifyHMAC(api.config.SharedSecret, r.Header.Get("X-Timestamp"), r.Header.Get("X-Signature"), body, api.config.SkewSeconds) {
		if api.metrics != nil {
			api.metrics.WebhookSignatureFails.WithLabelValues(companyLabel).Inc()
		}
		api.recordReceived(companyLabel, "invalid_signature")
		writeError(w, r, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	}

	if !security.VerifyWebhookToken(api.config.WebhookToken, r.Header.Get("X-Webhook-Token")) {
		api.recordReceived(companyLabel, "invalid_token")
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "webhook token mismatch")
		return
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		api.recordReceived(companyLabel, "invalid_payload")
		api.logInvalidPayload(companyLabel, "body is not a JSON object", body)
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "body is not a JSON object")
		return
	}

	normalized := payload.Normalize(envelope)
	if normalized.Number == "" {
		api.recordReceived(companyLabel, "invalid_payload")
		api.logInvalidPayload(companyLabel, "could not resolve a sender number", body)
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "could not resolve a sender number")
		return
	}

	ip := clientIP(r)
	allowedIP, err := api.limiter.AllowIP(r.Context(), tenantCtx, ip)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "rate_limit_unavailable", "rate limiter unavailable")
		return
	}
	if !allowedIP {
		api.recordRateLimited(companyLabel, "ip")
		api.recordReceived(companyLabel, "too_many_requests_ip")
		writeError(w, r, http.StatusTooManyRequests, "too_many_requests_ip", "too many requests from this address")
		return
	}

	allowedNumber, err := api.limiter.AllowNumber(r.Context(), tenantCtx, normalized.Number)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "rate_limit_unavailable", "rate limiter unavailable")
		return
	}
	if !allowedNumber {
		api.recordRateLimited(companyLabel, "number")
		api.recordReceived(companyLabel, "too_many_requests_number")
		writeError(w, r, http.StatusTooManyRequests, "too_many_requests_number", "too many requests for this sender")
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	job := domain.QueueJob{
		TenantID:      tenant.ID,
		Number:        normalized.Number,
		Text:          normalized.Text,
		Kind:          normalized.Kind,
		CorrelationID: correlationID,
	}
	if err := api.producer.Enqueue(r.Context(), job); err != nil {
		api.recordReceived(companyLabel, "enqueue_failed")
		writeError(w, r, http.StatusInternalServerError, "enqueue_failed", "could not enqueue message")
		return
	}

	api.recordReceived(companyLabel, "queued")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":         true,
		"correlation_id": correlationID,
	})
}

// logInvalidPayload emits a diagnostic record for an envelope that
// could not be normalized, masking email/phone/card-shaped substrings
// in the body first so the preview is safe to keep in log storage.
func (api *WebhookAPI) logInvalidPayload(company, reason string, body []byte) {
	if api.logger == nil {
		return
	}
	api.logger.Debug("webhook payload normalization failed",
		zap.String("company", company),
		zap.String("reason", reason),
		zap.ByteString("body_preview", security.MaskPIIJSON(body)))
}

func (api *WebhookAPI) recordReceived(company, status string) {
	if api.metrics == nil {
		return
	}
	api.metrics.WebhookReceivedTotal.WithLabelValues(company, status).Inc()
}

func (api *WebhookAPI) recordRateLimited(company, scope string) {
	if api.metrics == nil {
		return
	}
	api.metrics.RateLimitRejections.WithLabelValues(company, scope).Inc()
}

func intToLabel(tenantID int64) string {
	return strconv.FormatInt(tenantID, 10)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
