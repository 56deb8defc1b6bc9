package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/security"
)

// LocalQueue is a single-process fallback used when Redis is not
// configured, applying the same fixed retry schedule and idempotent
// dead-letter routing as the Redis Streams backend.
type LocalQueue struct {
	ch          chan domain.QueueJob
	maxAttempts int
	logger      *zap.Logger

	dlqMu sync.Mutex
	dlq   []domain.QueueJob
}

func NewLocalQueue(bufferSize, maxAttempts int, logger *zap.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if maxAttempts <= 0 {
		maxAttempts = len(RetryDelays) + 1
	}
	return &LocalQueue{
		ch:          make(chan domain.QueueJob, bufferSize),
		maxAttempts: maxAttempts,
		logger:      logger,
		dlq:         make([]domain.QueueJob, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, job domain.QueueJob) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- job:
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueJob) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-q.ch:
			err := handler(ctx, job)
			if err == nil {
				continue
			}

			if IsPermanent(err) {
				q.sendToDeadLetter(job, err)
				continue
			}

			job.Attempt++
			if job.Attempt >= q.maxAttempts {
				q.sendToDeadLetter(job, err)
				continue
			}

			delay := time.Duration(delayForAttempt(job.Attempt)) * time.Second
			go func(retryJob domain.QueueJob) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					q.ch <- retryJob
				}
			}(job)
		}
	}
}

func (q *LocalQueue) sendToDeadLetter(job domain.QueueJob, cause error) {
	if job.SentToDeadLetter {
		return
	}
	job.SentToDeadLetter = true

	q.dlqMu.Lock()
	q.dlq = append(q.dlq, job)
	q.dlqMu.Unlock()

	if q.logger != nil {
		reason := ""
		if cause != nil {
			reason = security.TruncateAndSanitize(cause.Error(), maxDeadLetterReasonLength)
		}
		q.logger.Warn("local queue moved job to dead letter",
			zap.Int64("tenant_id", job.TenantID),
			zap.String("correlation_id", job.CorrelationID),
			zap.String("reason", reason))
	}
}

func (q *LocalQueue) DeadLetterSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

func (q *LocalQueue) DeadLetterJobs() []domain.QueueJob {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]domain.QueueJob(nil), q.dlq...)
}

// RequeueDeadLetter removes job from the in-memory dead-letter slice (by
// tenant and correlation id) and re-enqueues it with a reset attempt
// counter.
func (q *LocalQueue) RequeueDeadLetter(ctx context.Context, job domain.QueueJob) error {
	q.dlqMu.Lock()
	for i, candidate := range q.dlq {
		if candidate.TenantID == job.TenantID && candidate.CorrelationID == job.CorrelationID {
			q.dlq = append(q.dlq[:i], q.dlq[i+1:]...)
			break
		}
	}
	q.dlqMu.Unlock()

	job.Attempt = 0
	job.SentToDeadLetter = false
	return q.Enqueue(ctx, job)
}
