package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// PostgresConversationsRepository persists conversations over a pgxpool
// connection pool, using parameterized SQL and %w-wrapped errors.
type PostgresConversationsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationsRepository(pool *pgxpool.Pool) *PostgresConversationsRepository {
	return &PostgresConversationsRepository{pool: pool}
}

func (r *PostgresConversationsRepository) GetOrCreate(ctx context.Context, tenantID int64, number string) (*domain.Conversation, error) {
	var (
		id          int64
		contextJSON []byte
		lastMessage string
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, context_json, last_message, created_at, updated_at
		FROM conversations
		WHERE tenant_id = $1 AND number = $2
		ORDER BY id DESC
		LIMIT 1
	`, tenantID, number).Scan(&id, &contextJSON, &lastMessage, &createdAt, &updatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		now := time.Now().UTC()
		insertErr := r.pool.QueryRow(ctx, `
			INSERT INTO conversations (tenant_id, number, context_json, last_message, created_at, updated_at)
			VALUES ($1, $2, '[]', '', $3, $3)
			RETURNING id
		`, tenantID, number, now).Scan(&id)
		if insertErr != nil {
			return nil, fmt.Errorf("repository: create conversation: %w", insertErr)
		}
		return &domain.Conversation{
			ID:        id,
			TenantID:  tenantID,
			Number:    number,
			Context:   []domain.Message{},
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get conversation: %w", err)
	}

	var messages []domain.Message
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &messages); err != nil {
			return nil, fmt.Errorf("repository: decode conversation context: %w", err)
		}
	}

	return &domain.Conversation{
		ID:          id,
		TenantID:    tenantID,
		Number:      number,
		Context:     messages,
		LastMessage: lastMessage,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func (r *PostgresConversationsRepository) UpdateContext(ctx context.Context, conversationID int64, context []domain.Message) error {
	encoded, err := json.Marshal(context)
	if err != nil {
		return fmt.Errorf("repository: encode conversation context: %w", err)
	}

	lastMessage := ""
	if len(context) > 0 {
		lastMessage = context[len(context)-1].Body
	}

	command, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET context_json = $2, last_message = $3, updated_at = $4
		WHERE id = $1
	`, conversationID, encoded, lastMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: update conversation context: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
