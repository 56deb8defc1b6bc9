package repository

import (
	"context"
	"sync"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// CustomerContextsRepository is the DB-authoritative store behind the
// cache layer for per-customer profile rows. A cache miss always
// reconsults this repository, creating a default row on first contact.
type CustomerContextsRepository interface {
	GetOrCreate(ctx context.Context, tenantID int64, number string) (*domain.CustomerContext, error)
	Save(ctx context.Context, profile domain.CustomerContext) error
}

type MemoryCustomerContextsRepository struct {
	mu      sync.Mutex
	nextID  int64
	byKey   map[string]*domain.CustomerContext
}

func NewMemoryCustomerContextsRepository() *MemoryCustomerContextsRepository {
	return &MemoryCustomerContextsRepository{byKey: make(map[string]*domain.CustomerContext)}
}

func (r *MemoryCustomerContextsRepository) GetOrCreate(_ context.Context, tenantID int64, number string) (*domain.CustomerContext, error) {
	key := keyOf(tenantID, number)

	r.mu.Lock()
	defer r.mu.Unlock()

	if profile, ok := r.byKey[key]; ok {
		clone := *profile
		return &clone, nil
	}

	r.nextID++
	profile := domain.DefaultCustomerContext(tenantID, number)
	profile.ID = r.nextID
	r.byKey[key] = &profile
	clone := profile
	return &clone, nil
}

func (r *MemoryCustomerContextsRepository) Save(_ context.Context, profile domain.CustomerContext) error {
	key := keyOf(profile.TenantID, profile.Number)

	r.mu.Lock()
	defer r.mu.Unlock()
	clone := profile
	r.byKey[key] = &clone
	return nil
}
