package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

type PostgresDeliveryLogsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDeliveryLogsRepository(pool *pgxpool.Pool) *PostgresDeliveryLogsRepository {
	return &PostgresDeliveryLogsRepository{pool: pool}
}

func (r *PostgresDeliveryLogsRepository) Add(ctx context.Context, log domain.DeliveryLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_logs (tenant_id, number, body, status, external_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.TenantID, log.Number, log.Body, string(log.Status), log.ExternalID, log.Error, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: insert delivery log: %w", err)
	}
	return nil
}
