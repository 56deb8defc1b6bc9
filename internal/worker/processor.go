// Package worker hosts the pipeline orchestrator: the per-message
// control flow that turns a dequeued domain.QueueJob into a rendered
// reply, a gateway send attempt, and a persisted delivery outcome.
// Grounded on the upstream service's process_incoming_message function.
package worker

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iago/extensao-whatsapp-back/internal/circuitbreaker"
	contextengine "github.com/iago/extensao-whatsapp-back/internal/context"
	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/gateway"
	"github.com/iago/extensao-whatsapp-back/internal/heartbeat"
	"github.com/iago/extensao-whatsapp-back/internal/llm"
	"github.com/iago/extensao-whatsapp-back/internal/metrics"
	"github.com/iago/extensao-whatsapp-back/internal/queue"
	"github.com/iago/extensao-whatsapp-back/internal/repository"
	"github.com/iago/extensao-whatsapp-back/internal/security"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

// Processor consumes queue jobs and drives them through context
// preparation, reply generation, delivery, and persistence.
type Processor struct {
	consumer      queue.Consumer
	engine        *contextengine.Engine
	llmClient     *llm.Client
	gatewayClient *gateway.Client
	conversations repository.ConversationsRepository
	deliveryLogs  repository.DeliveryLogsRepository
	breakers      map[int64]*circuitbreaker.Breaker
	breakerFactory func(tenantID int64) *circuitbreaker.Breaker
	metrics       *metrics.Collector
	logger        *zap.Logger
	maxAttempts   int
	heartbeat     *heartbeat.Tracker
}

func NewProcessor(
	consumer queue.Consumer,
	engine *contextengine.Engine,
	llmClient *llm.Client,
	gatewayClient *gateway.Client,
	conversations repository.ConversationsRepository,
	deliveryLogs repository.DeliveryLogsRepository,
	breakerFactory func(tenantID int64) *circuitbreaker.Breaker,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
	maxAttempts int,
	heartbeatTracker *heartbeat.Tracker,
) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = len(queue.RetryDelays) + 1
	}
	return &Processor{
		consumer:       consumer,
		engine:         engine,
		llmClient:      llmClient,
		gatewayClient:  gatewayClient,
		conversations:  conversations,
		deliveryLogs:   deliveryLogs,
		breakers:       make(map[int64]*circuitbreaker.Breaker),
		breakerFactory: breakerFactory,
		metrics:        metricsCollector,
		logger:         logger,
		maxAttempts:    maxAttempts,
		heartbeat:      heartbeatTracker,
	}
}

func (p *Processor) Start(ctx context.Context) {
	if p.heartbeat != nil {
		stop := p.runHeartbeatTicker(ctx)
		defer stop()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processJob)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Warn("worker consume loop error", zap.Error(err))
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runHeartbeatTicker touches the tracker immediately and every 30
// seconds thereafter, independent of how long a single Consume call
// blocks between messages, so an idle worker still reports alive.
func (p *Processor) runHeartbeatTicker(ctx context.Context) func() {
	p.heartbeat.Touch()
	ticker := time.NewTicker(30 * time.Second)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				p.heartbeat.Touch()
			}
		}
	}()
	return func() { close(done) }
}

func (p *Processor) breakerFor(tenantID int64) *circuitbreaker.Breaker {
	if breaker, ok := p.breakers[tenantID]; ok {
		return breaker
	}
	breaker := p.breakerFactory(tenantID)
	p.breakers[tenantID] = breaker
	return breaker
}

// processJob implements the upstream process_incoming_message control
// flow: sanitize → prepare context → choose a template candidate →
// branch on injection / AI-disabled / LLM call → send → persist.
func (p *Processor) processJob(ctx context.Context, job domain.QueueJob) error {
	if p.heartbeat != nil {
		p.heartbeat.Touch()
	}
	started := time.Now()
	tenant := tenancy.Context{CompanyID: job.TenantID}
	tenantLabel := zap.Int64("tenant_id", job.TenantID)

	userText := security.SanitizeText(job.Text, 1000)

	observeEarlyFailure := func() {
		if p.metrics != nil {
			p.metrics.TaskLatency.WithLabelValues(intToLabel(job.TenantID), "failed").Observe(time.Since(started).Seconds())
		}
	}

	conversation, err := p.conversations.GetOrCreate(ctx, job.TenantID, job.Number)
	if err != nil {
		observeEarlyFailure()
		return err
	}

	runtime, err := p.engine.PrepareRuntimeContext(ctx, tenant, *conversation, job.Number, userText)
	if err != nil {
		observeEarlyFailure()
		return err
	}

	templateName := runtime.TemplateName
	if !p.engine.TemplateExists(templateName) {
		templateName = "default"
	}

	var reply string
	outcome := "sent"

	tenantMetricLabel := intToLabel(job.TenantID)

	switch {
	case security.DetectPromptInjection(userText):
		reply = p.engine.Render("fallback", tenantMetricLabel, runtime.TemplateVars)
		if p.metrics != nil {
			p.metrics.FallbackTransfers.WithLabelValues(tenantMetricLabel).Inc()
		}
	case !runtime.PersonalizationConfig.AIEnabled:
		reply = p.engine.Render("ai_disabled", tenantMetricLabel, runtime.TemplateVars)
	default:
		prompt := p.engine.BuildLLMContext(runtime, userText)
		generated, genErr := p.llmClient.GenerateReply(ctx, p.breakerFor(job.TenantID), tenantMetricLabel, prompt)
		if genErr != nil {
			reply = p.engine.Render("technical_issue", tenantMetricLabel, runtime.TemplateVars)
			if p.metrics != nil {
				p.metrics.FallbackTransfers.WithLabelValues(tenantMetricLabel).Inc()
			}
			if p.logger != nil {
				p.logger.Warn("llm generation failed, serving technical_issue template", tenantLabel, zap.Error(genErr))
			}
		} else {
			runtime.TemplateVars["resposta"] = generated
			reply = p.engine.Render(templateName, tenantMetricLabel, runtime.TemplateVars)
			if reply == "" {
				reply = p.engine.Render("fallback", tenantMetricLabel, runtime.TemplateVars)
			}
		}
	}

	deliveryStatus := domain.DeliveryStatusSent
	var externalID string
	var sendErr error
	externalID, sendErr = p.gatewayClient.SendText(ctx, job.Number, reply)
	if sendErr != nil {
		outcome = "failed"
		deliveryStatus = classifyDeliveryFailure(sendErr, job.Attempt, p.maxAttempts)
	}

	var persistErr error
	if sendErr == nil {
		persistErr = p.onSuccess(ctx, tenant, conversation, job, userText, reply, externalID, runtime)
		if persistErr != nil && p.logger != nil {
			p.logger.Error("persisting successful delivery failed, job will retry", tenantLabel, zap.Error(persistErr))
		}
	} else {
		persistErr = p.deliveryLogs.Add(ctx, domain.DeliveryLog{
			TenantID: job.TenantID,
			Number:   job.Number,
			Body:     reply,
			Status:   deliveryStatus,
			Error:    security.TruncateAndSanitize(sendErr.Error(), maxErrorBodyLength),
		})
	}

	if p.metrics != nil {
		p.metrics.TaskLatency.WithLabelValues(intToLabel(job.TenantID), outcome).Observe(time.Since(started).Seconds())
		p.metrics.DeliveryStatusTotal.WithLabelValues(intToLabel(job.TenantID), string(deliveryStatus)).Inc()
	}

	if sendErr != nil && deliveryStatus == domain.DeliveryStatusFailedPermanent {
		return &queue.PermanentError{Cause: sendErr}
	}
	if sendErr != nil {
		return sendErr
	}
	// A successful send with a persistence failure is never classified
	// permanent: per-step state is cheap to recompute and rollback is not
	// available across stores, so the job retries from the top instead of
	// silently losing history/profile/delivery-log state.
	return persistErr
}

const maxErrorBodyLength = 256

// onSuccess persists the conversation history, customer profile, and
// delivery log for a sent reply, in that order. It stops at the first
// failing write and propagates the error instead of silently discarding
// it, so the job is retried; writes that already succeeded are not
// rolled back.
func (p *Processor) onSuccess(
	ctx context.Context,
	tenant tenancy.Context,
	conversation *domain.Conversation,
	job domain.QueueJob,
	userText, reply, externalID string,
	runtime contextengine.RuntimeContext,
) error {
	if err := p.engine.RecordHistory(ctx, tenant, conversation, runtime.PersonalizationConfig.MessageLimit, userText, reply); err != nil {
		return err
	}

	if err := p.engine.RetrainProfile(ctx, tenant, runtime.Profile, conversation.Context, runtime.Sentiment, runtime.Intention); err != nil {
		return err
	}

	return p.deliveryLogs.Add(ctx, domain.DeliveryLog{
		TenantID:   job.TenantID,
		Number:     job.Number,
		Body:       reply,
		Status:     domain.DeliveryStatusSent,
		ExternalID: externalID,
	})
}

// classifyDeliveryFailure mirrors the upstream retry-exhaustion
// bookkeeping: a retryable gateway error is FAILED_TEMPORARY while
// retries remain and FAILED_PERMANENT once this was the final attempt;
// a non-retryable gateway error is always FAILED_PERMANENT.
func classifyDeliveryFailure(err error, attempt, maxAttempts int) domain.DeliveryStatus {
	if gatewayErr, ok := err.(*gateway.Error); ok {
		if gatewayErr.Retryable && attempt+1 < maxAttempts {
			return domain.DeliveryStatusFailedTemporary
		}
	}
	return domain.DeliveryStatusFailedPermanent
}

func intToLabel(tenantID int64) string {
	return strconv.FormatInt(tenantID, 10)
}
