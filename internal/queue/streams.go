package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/security"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

const maxDeadLetterReasonLength = 256

// StreamsConfig configures the per-tenant Redis Streams queue.
type StreamsConfig struct {
	Addr            string
	Password        string
	DB              int
	Prefix          string
	DLQStream       string
	Group           string
	Consumer        string
	MaxAttempts     int
	DiscoverEvery   time.Duration
}

// StreamsQueue implements Producer+Consumer over one Redis Stream per
// tenant (named "<prefix>:company_<tenant_id>", matching the upstream
// queue_name_for_company scheme) plus a single shared dead-letter
// stream. Failed jobs are retried after the fixed RetryDelays schedule
// rather than immediately, and dead-letter routing is guarded by the
// job's own SentToDeadLetter flag so a job already dead-lettered is
// never dead-lettered twice.
type StreamsQueue struct {
	client        *redis.Client
	prefix        string
	dlqStream     string
	group         string
	consumer      string
	maxAttempts   int
	discoverEvery time.Duration

	mu      sync.Mutex
	groups  map[string]bool
	streams map[string]bool
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "wa"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Prefix + "_dead_letter"
	}
	if cfg.Group == "" {
		cfg.Group = "wa_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = len(RetryDelays) + 1
	}
	if cfg.DiscoverEvery <= 0 {
		cfg.DiscoverEvery = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:        client,
		prefix:        cfg.Prefix,
		dlqStream:     cfg.DLQStream,
		group:         cfg.Group,
		consumer:      cfg.Consumer,
		maxAttempts:   cfg.MaxAttempts,
		discoverEvery: cfg.DiscoverEvery,
		groups:        make(map[string]bool),
		streams:       make(map[string]bool),
	}
	return queue, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) streamFor(tenantID int64) string {
	tenant := tenancy.Context{CompanyID: tenantID}
	return tenant.QueueName(q.prefix)
}

func (q *StreamsQueue) Enqueue(ctx context.Context, job domain.QueueJob) error {
	stream := q.streamFor(job.TenantID)
	if err := q.ensureGroup(ctx, stream); err != nil {
		return err
	}
	return q.add(ctx, stream, job)
}

func (q *StreamsQueue) add(ctx context.Context, stream string, job domain.QueueJob) error {
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"tenant_id":           job.TenantID,
			"number":              job.Number,
			"text":                job.Text,
			"kind":                string(job.Kind),
			"correlation_id":      job.CorrelationID,
			"attempt":             job.Attempt,
			"sent_to_dead_letter": job.SentToDeadLetter,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("queue: enqueue to %s: %w", stream, err)
	}
	return nil
}

// Consume reads from every tenant stream matching the configured
// prefix, rediscovering new tenant streams on discoverEvery.
func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueJob) error) error {
	ticker := time.NewTicker(q.discoverEvery)
	defer ticker.Stop()

	if err := q.discoverStreams(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := q.discoverStreams(ctx); err != nil {
				return err
			}
		default:
		}

		streamArgs := q.streamReadArgs()
		if len(streamArgs) == 0 {
			time.Sleep(200 * time.Millisecond)
			continue
		}

		results, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  streamArgs,
			Count:    10,
			Block:    2 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			continue
		}

		for _, streamResult := range results {
			for _, item := range streamResult.Messages {
				q.handleMessage(ctx, streamResult.Stream, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) handleMessage(ctx context.Context, stream string, item redis.XMessage, handler func(context.Context, domain.QueueJob) error) {
	job, err := parseStreamMessage(item)
	if err != nil {
		_ = q.ackAndDelete(ctx, stream, item.ID)
		return
	}

	handleErr := handler(ctx, job)
	if handleErr == nil {
		_ = q.ackAndDelete(ctx, stream, item.ID)
		return
	}

	if IsPermanent(handleErr) {
		q.sendToDeadLetter(ctx, job, handleErr.Error())
		_ = q.ackAndDelete(ctx, stream, item.ID)
		return
	}

	job.Attempt++
	if job.Attempt >= q.maxAttempts {
		q.sendToDeadLetter(ctx, job, handleErr.Error())
		_ = q.ackAndDelete(ctx, stream, item.ID)
		return
	}

	delay := time.Duration(delayForAttempt(job.Attempt)) * time.Second
	go func(retryJob domain.QueueJob, retryStream string) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		<-timer.C
		_ = q.add(context.Background(), retryStream, retryJob)
	}(job, stream)
	_ = q.ackAndDelete(ctx, stream, item.ID)
}

// sendToDeadLetter is idempotent: once a job's SentToDeadLetter flag is
// set, it is never written to the dead-letter stream again.
func (q *StreamsQueue) sendToDeadLetter(ctx context.Context, job domain.QueueJob, cause string) {
	if job.SentToDeadLetter {
		return
	}
	job.SentToDeadLetter = true

	encoded, _ := json.Marshal(job)
	_, _ = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.dlqStream,
		Values: map[string]any{
			"job":      string(encoded),
			"error":    security.TruncateAndSanitize(cause, maxDeadLetterReasonLength),
			"moved_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
}

// RequeueDeadLetter re-enqueues a dead-lettered job to its tenant's
// primary stream with the dead-letter flag cleared and the attempt
// counter reset. The job's entry in the dead-letter stream is left in
// place.
func (q *StreamsQueue) RequeueDeadLetter(ctx context.Context, job domain.QueueJob) error {
	job.Attempt = 0
	job.SentToDeadLetter = false
	return q.Enqueue(ctx, job)
}

func (q *StreamsQueue) discoverStreams(ctx context.Context) error {
	pattern := q.prefix + ":company_*"
	iter := q.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		stream := iter.Val()
		if err := q.ensureGroup(ctx, stream); err != nil {
			continue
		}
	}
	return iter.Err()
}

func (q *StreamsQueue) streamReadArgs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	args := make([]string, 0, len(q.streams)*2)
	names := make([]string, 0, len(q.streams))
	for stream := range q.streams {
		names = append(names, stream)
	}
	for _, name := range names {
		args = append(args, name)
	}
	for range names {
		args = append(args, ">")
	}
	return args
}

func (q *StreamsQueue) ensureGroup(ctx context.Context, stream string) error {
	q.mu.Lock()
	alreadyKnown := q.groups[stream]
	q.mu.Unlock()
	if alreadyKnown {
		return nil
	}

	err := q.client.XGroupCreateMkStream(ctx, stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("queue: ensure group for %s: %w", stream, err)
	}

	q.mu.Lock()
	q.groups[stream] = true
	q.streams[stream] = true
	q.mu.Unlock()
	return nil
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, stream, streamID string) error {
	if err := q.client.XAck(ctx, stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("queue: xack: %w", err)
	}
	if err := q.client.XDel(ctx, stream, streamID).Err(); err != nil {
		return fmt.Errorf("queue: xdel: %w", err)
	}
	return nil
}

func parseStreamMessage(item redis.XMessage) (domain.QueueJob, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	tenantIDString, err := getString("tenant_id")
	if err != nil {
		return domain.QueueJob{}, err
	}
	tenantID, err := strconv.ParseInt(tenantIDString, 10, 64)
	if err != nil {
		return domain.QueueJob{}, fmt.Errorf("invalid tenant_id: %w", err)
	}

	number, err := getString("number")
	if err != nil {
		return domain.QueueJob{}, err
	}
	text, err := getString("text")
	if err != nil {
		return domain.QueueJob{}, err
	}
	kind, err := getString("kind")
	if err != nil {
		return domain.QueueJob{}, err
	}
	correlationID, _ := getString("correlation_id")

	attemptString, err := getString("attempt")
	if err != nil {
		return domain.QueueJob{}, err
	}
	attempt, err := strconv.Atoi(attemptString)
	if err != nil {
		return domain.QueueJob{}, fmt.Errorf("invalid attempt: %w", err)
	}

	sentToDeadLetter := false
	if raw, err := getString("sent_to_dead_letter"); err == nil {
		sentToDeadLetter = raw == "1" || strings.EqualFold(raw, "true")
	}

	return domain.QueueJob{
		TenantID:         tenantID,
		Number:           number,
		Text:             text,
		Kind:             domain.MessageKind(kind),
		CorrelationID:    correlationID,
		Attempt:          attempt,
		SentToDeadLetter: sentToDeadLetter,
	}, nil
}
