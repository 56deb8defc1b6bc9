package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

type PostgresTenantsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTenantsRepository(pool *pgxpool.Pool) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{pool: pool}
}

func (r *PostgresTenantsRepository) ResolveByDomain(ctx context.Context, rawDomain string) (*domain.Tenant, error) {
	normalized := tenancy.NormalizeDomain(rawDomain)

	var tenant domain.Tenant
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, label, domain, status
		FROM tenants
		WHERE domain = $1
	`, normalized).Scan(&tenant.ID, &tenant.Label, &tenant.Domain, &status)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: resolve tenant: %w", err)
	}
	tenant.Status = domain.TenantStatus(status)
	return &tenant, nil
}
