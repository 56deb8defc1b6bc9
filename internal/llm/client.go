// Package llm wraps the generative-reply call: a Gemini-shaped HTTP
// client guarded by a per-tenant circuit breaker and a prompt-injection
// filter, retrying transient failures with full-jitter exponential
// backoff.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/iago/extensao-whatsapp-back/internal/circuitbreaker"
	"github.com/iago/extensao-whatsapp-back/internal/metrics"
	"github.com/iago/extensao-whatsapp-back/internal/security"
)

// Error wraps a failed generation call, distinguishing transient
// (retryable) failures from permanent ones, mirroring the upstream
// LLMError/retryable split.
type Error struct {
	Message   string
	Retryable bool
}

func (e *Error) Error() string { return e.Message }

// Config configures the Gemini-shaped HTTP client.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	BreakerLimit   int
	BreakerCooldown time.Duration
}

// Client generates conversational replies.
type Client struct {
	httpClient *http.Client
	config     Config
	metrics    *metrics.Collector
}

func New(config Config, metricsCollector *metrics.Collector) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = 10 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		metrics:    metricsCollector,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

// GenerateReply produces a reply for prompt, scoped to tenantLabel for
// metrics and breaker state. It short-circuits to security.SafeReply
// without calling the breaker or the network when the prompt matches a
// known injection pattern, matching the upstream guard-before-call
// ordering.
func (c *Client) GenerateReply(ctx context.Context, breaker *circuitbreaker.Breaker, tenantLabel, prompt string) (string, error) {
	if security.DetectPromptInjection(prompt) {
		return security.SafeReply, nil
	}

	if breaker != nil {
		allowed, err := breaker.Allow(ctx)
		if err != nil {
			return "", fmt.Errorf("llm: breaker check: %w", err)
		}
		if !allowed {
			return "", &Error{Message: "llm: circuit breaker open", Retryable: false}
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithJitter(ctx, c.config.BackoffBase, c.config.BackoffCap, attempt); err != nil {
				return "", err
			}
		}

		reply, err := c.callOnce(ctx, prompt)
		if err == nil {
			if breaker != nil {
				_ = breaker.RecordSuccess(ctx)
			}
			if c.metrics != nil {
				c.metrics.TokenUsageTotal.WithLabelValues(tenantLabel, "reply").Add(float64(len(strings.Fields(reply))))
			}
			return reply, nil
		}

		lastErr = err
		var llmErr *Error
		if asErr, ok := err.(*Error); ok {
			llmErr = asErr
		}
		if llmErr == nil || !llmErr.Retryable {
			if breaker != nil {
				_ = breaker.RecordFailure(ctx)
			}
			return "", err
		}
	}

	if breaker != nil {
		_ = breaker.RecordFailure(ctx)
	}
	if c.metrics != nil {
		c.metrics.LLMErrorRate.WithLabelValues(tenantLabel).Set(1)
	}
	return "", lastErr
}

func (c *Client) callOnce(ctx context.Context, prompt string) (string, error) {
	requestBody := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("llm: encode request: %v", err), Retryable: false}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("llm: build request: %v", err), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("llm: call: %v", err), Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("llm: read body: %v", err), Retryable: true}
	}

	if resp.StatusCode >= 500 {
		return "", &Error{Message: fmt.Sprintf("llm: provider status %d: %s", resp.StatusCode, security.SanitizeForLog(string(body))), Retryable: true}
	}
	if resp.StatusCode >= 400 {
		return "", &Error{Message: fmt.Sprintf("llm: provider status %d: %s", resp.StatusCode, security.SanitizeForLog(string(body))), Retryable: false}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &Error{Message: fmt.Sprintf("llm: decode response: %v", err), Retryable: true}
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Message: "llm: empty candidate response", Retryable: true}
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// sleepWithJitter implements full-jitter exponential backoff:
// random(0, min(cap, base*2^attempt)).
func sleepWithJitter(ctx context.Context, base, cap time.Duration, attempt int) error {
	maxDelay := base * time.Duration(1<<uint(attempt))
	if maxDelay > cap || maxDelay <= 0 {
		maxDelay = cap
	}
	delay := time.Duration(rand.Int63n(int64(maxDelay) + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
