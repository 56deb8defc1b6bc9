package queue

import (
	"context"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// RetryDelays is the fixed retry schedule, in seconds, applied after a
// failed delivery attempt; attempts beyond the schedule's length reuse
// its last interval.
var RetryDelays = []int{5, 15, 45, 90}

func delayForAttempt(attempt int) int {
	if attempt <= 1 {
		return RetryDelays[0]
	}
	if attempt > len(RetryDelays) {
		return RetryDelays[len(RetryDelays)-1]
	}
	return RetryDelays[attempt-1]
}

// Producer sends async jobs to a tenant's queue backend.
type Producer interface {
	Enqueue(ctx context.Context, job domain.QueueJob) error
}

// Consumer receives async jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueJob) error) error
}

// DeadLetterRequeuer lets the admin surface resubmit a dead-lettered job
// for reprocessing, implemented by both queue backends.
type DeadLetterRequeuer interface {
	RequeueDeadLetter(ctx context.Context, job domain.QueueJob) error
}
