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

type PostgresPersonalizationConfigsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPersonalizationConfigsRepository(pool *pgxpool.Pool) *PostgresPersonalizationConfigsRepository {
	return &PostgresPersonalizationConfigsRepository{pool: pool}
}

func (r *PostgresPersonalizationConfigsRepository) GetOrCreate(ctx context.Context, tenantID int64, defaultMessageLimit int) (*domain.PersonalizationConfig, error) {
	var (
		id             int64
		toneOfVoice    string
		messageLimit   int
		phrasesJSON    []byte
		aiEnabled      bool
		formality      int
		empathy        int
		adaptiveHumor  bool
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, tone_of_voice, message_limit, opening_phrases, ai_enabled, formality, empathy, adaptive_humor
		FROM personalization_configs
		WHERE tenant_id = $1
	`, tenantID).Scan(&id, &toneOfVoice, &messageLimit, &phrasesJSON, &aiEnabled, &formality, &empathy, &adaptiveHumor)

	if errors.Is(err, pgx.ErrNoRows) {
		defaultConfig := domain.DefaultPersonalizationConfig(tenantID, defaultMessageLimit)
		phrasesEncoded, _ := json.Marshal(defaultConfig.OpeningPhrases)
		insertErr := r.pool.QueryRow(ctx, `
			INSERT INTO personalization_configs (tenant_id, tone_of_voice, message_limit, opening_phrases, ai_enabled, formality, empathy, adaptive_humor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, tenantID, defaultConfig.ToneOfVoice, defaultConfig.MessageLimit, phrasesEncoded, defaultConfig.AIEnabled, defaultConfig.Formality, defaultConfig.Empathy, defaultConfig.AdaptiveHumor).Scan(&defaultConfig.ID)
		if insertErr != nil {
			return nil, fmt.Errorf("repository: create personalization config: %w", insertErr)
		}
		return &defaultConfig, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get personalization config: %w", err)
	}

	config := domain.PersonalizationConfig{
		ID:            id,
		TenantID:      tenantID,
		ToneOfVoice:   toneOfVoice,
		MessageLimit:  messageLimit,
		AIEnabled:     aiEnabled,
		Formality:     formality,
		Empathy:       empathy,
		AdaptiveHumor: adaptiveHumor,
	}
	_ = json.Unmarshal(phrasesJSON, &config.OpeningPhrases)
	return &config, nil
}
