package contextengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

const historyCacheTTL = 10 * time.Minute

// loadHistory returns the conversation's message history. A cache hit
// returns immediately; a cache miss always re-reads Postgres (the
// authoritative store) rather than trusting an absent cache entry as
// "no history", since the cache can be evicted or cold-started without
// the conversation itself being new.
func (e *Engine) loadHistory(ctx context.Context, tenant tenancy.Context, conversation domain.Conversation) ([]domain.Message, error) {
	key := tenant.NamespacedKey("history", conversation.Number)

	if raw, hit, err := e.cache.Get(ctx, key); err == nil && hit {
		var messages []domain.Message
		if err := json.Unmarshal(raw, &messages); err == nil {
			return messages, nil
		}
	}

	return conversation.Context, nil
}

func (e *Engine) storeHistory(ctx context.Context, tenant tenancy.Context, number string, messages []domain.Message) {
	key := tenant.NamespacedKey("history", number)
	encoded, err := json.Marshal(messages)
	if err != nil {
		return
	}
	_ = e.cache.Set(ctx, key, encoded, historyCacheTTL)
}

// RecordHistory appends the user and assistant turns from this exchange
// to the conversation, caps it to the personalization config's message
// limit, persists it, and refreshes the cache.
func (e *Engine) RecordHistory(ctx context.Context, tenant tenancy.Context, conversation *domain.Conversation, limit int, userText, assistantText string) error {
	updated := append(append([]domain.Message(nil), conversation.Context...),
		domain.Message{Role: domain.RoleUser, Body: userText},
		domain.Message{Role: domain.RoleAssistant, Body: assistantText},
	)

	if limit > 0 && len(updated) > limit {
		updated = updated[len(updated)-limit:]
	}

	if err := e.conversations.UpdateContext(ctx, conversation.ID, updated); err != nil {
		return err
	}
	conversation.Context = updated
	e.storeHistory(ctx, tenant, conversation.Number, updated)
	return nil
}
