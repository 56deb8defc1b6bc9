package repository

import (
	"context"
	"sync"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/tenancy"
)

// TenantsRepository resolves a webhook's originating domain to the
// tenant it belongs to.
type TenantsRepository interface {
	ResolveByDomain(ctx context.Context, rawDomain string) (*domain.Tenant, error)
}

type MemoryTenantsRepository struct {
	mu       sync.RWMutex
	byDomain map[string]*domain.Tenant
}

func NewMemoryTenantsRepository() *MemoryTenantsRepository {
	return &MemoryTenantsRepository{byDomain: make(map[string]*domain.Tenant)}
}

// Register adds or replaces a tenant lookup entry, normalizing its
// domain the same way ResolveByDomain normalizes the incoming value.
func (r *MemoryTenantsRepository) Register(tenant domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := tenancy.NormalizeDomain(tenant.Domain)
	cloned := tenant
	r.byDomain[normalized] = &cloned
}

func (r *MemoryTenantsRepository) ResolveByDomain(_ context.Context, rawDomain string) (*domain.Tenant, error) {
	normalized := tenancy.NormalizeDomain(rawDomain)

	r.mu.RLock()
	defer r.mu.RUnlock()
	tenant, ok := r.byDomain[normalized]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *tenant
	return &clone, nil
}
