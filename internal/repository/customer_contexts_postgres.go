package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

type PostgresCustomerContextsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCustomerContextsRepository(pool *pgxpool.Pool) *PostgresCustomerContextsRepository {
	return &PostgresCustomerContextsRepository{pool: pool}
}

func (r *PostgresCustomerContextsRepository) GetOrCreate(ctx context.Context, tenantID int64, number string) (*domain.CustomerContext, error) {
	var (
		id              int64
		topicsJSON      []byte
		productsJSON    []byte
		preferencesJSON []byte
		embeddingJSON   []byte
		lastSubject     string
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, frequent_topics, product_mentions, preferences, embedding, last_subject
		FROM customer_contexts
		WHERE tenant_id = $1 AND number = $2
	`, tenantID, number).Scan(&id, &topicsJSON, &productsJSON, &preferencesJSON, &embeddingJSON, &lastSubject)

	if errors.Is(err, pgx.ErrNoRows) {
		defaultProfile := domain.DefaultCustomerContext(tenantID, number)
		insertErr := r.pool.QueryRow(ctx, `
			INSERT INTO customer_contexts (tenant_id, number, frequent_topics, product_mentions, preferences, embedding, last_subject)
			VALUES ($1, $2, '[]', '[]', '{}', '[]', '')
			RETURNING id
		`, tenantID, number).Scan(&defaultProfile.ID)
		if insertErr != nil {
			return nil, fmt.Errorf("repository: create customer context: %w", insertErr)
		}
		return &defaultProfile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get customer context: %w", err)
	}

	profile := domain.CustomerContext{ID: id, TenantID: tenantID, Number: number, LastSubject: lastSubject}
	_ = json.Unmarshal(topicsJSON, &profile.FrequentTopics)
	_ = json.Unmarshal(productsJSON, &profile.ProductMentions)
	_ = json.Unmarshal(preferencesJSON, &profile.Preferences)
	_ = json.Unmarshal(embeddingJSON, &profile.Embedding)
	return &profile, nil
}

func (r *PostgresCustomerContextsRepository) Save(ctx context.Context, profile domain.CustomerContext) error {
	topicsJSON, err := json.Marshal(profile.FrequentTopics)
	if err != nil {
		return fmt.Errorf("repository: encode frequent topics: %w", err)
	}
	productsJSON, err := json.Marshal(profile.ProductMentions)
	if err != nil {
		return fmt.Errorf("repository: encode product mentions: %w", err)
	}
	preferencesJSON, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("repository: encode preferences: %w", err)
	}
	embeddingJSON, err := json.Marshal(profile.Embedding)
	if err != nil {
		return fmt.Errorf("repository: encode embedding: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE customer_contexts
		SET frequent_topics = $2, product_mentions = $3, preferences = $4, embedding = $5, last_subject = $6
		WHERE tenant_id = $1 AND number = $7
	`, profile.TenantID, topicsJSON, productsJSON, preferencesJSON, embeddingJSON, profile.LastSubject, profile.Number)
	if err != nil {
		return fmt.Errorf("repository: save customer context: %w", err)
	}
	return nil
}
