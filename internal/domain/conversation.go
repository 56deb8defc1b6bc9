package domain

import "time"

// MessageRole distinguishes the speaker of a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a single conversation turn held in context_json.
type Message struct {
	Role MessageRole `json:"role"`
	Body string      `json:"body"`
}

// Conversation holds the rolling context window for one (tenant, number).
// Invariant: at most one row per (tenant, number); len(Context) never
// exceeds the tenant's configured message_limit.
type Conversation struct {
	ID          int64
	TenantID    int64
	Number      string
	Context     []Message
	LastMessage string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
