package repository

import (
	"context"
	"sync"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// PersonalizationConfigsRepository is the DB-authoritative store behind
// the personalization-config cache.
type PersonalizationConfigsRepository interface {
	GetOrCreate(ctx context.Context, tenantID int64, defaultMessageLimit int) (*domain.PersonalizationConfig, error)
}

type MemoryPersonalizationConfigsRepository struct {
	mu     sync.Mutex
	byTenant map[int64]*domain.PersonalizationConfig
}

func NewMemoryPersonalizationConfigsRepository() *MemoryPersonalizationConfigsRepository {
	return &MemoryPersonalizationConfigsRepository{byTenant: make(map[int64]*domain.PersonalizationConfig)}
}

func (r *MemoryPersonalizationConfigsRepository) GetOrCreate(_ context.Context, tenantID int64, defaultMessageLimit int) (*domain.PersonalizationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if config, ok := r.byTenant[tenantID]; ok {
		clone := *config
		return &clone, nil
	}

	config := domain.DefaultPersonalizationConfig(tenantID, defaultMessageLimit)
	r.byTenant[tenantID] = &config
	clone := config
	return &clone, nil
}
