package domain

// MessageKind classifies the normalized inbound message shape.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindInteractive MessageKind = "interactive"
	KindTemplate    MessageKind = "template"
	KindMedia       MessageKind = "media"
)

// QueueJob is the transient unit of work created by the webhook handler
// and consumed by the worker pool. It is destroyed on any terminal state:
// success, permanent failure after dead-letter routing, or retry
// exhaustion.
type QueueJob struct {
	TenantID         int64       `json:"tenant_id"`
	Number           string      `json:"number"`
	Text             string      `json:"text"`
	Kind             MessageKind `json:"kind"`
	CorrelationID    string      `json:"correlation_id"`
	Attempt          int         `json:"attempt"`
	SentToDeadLetter bool        `json:"sent_to_dead_letter"`
}
