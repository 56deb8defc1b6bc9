package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
)

// DeliveryLogsRepository appends one row per send attempt, grounded on
// the upstream add_delivery_log.
type DeliveryLogsRepository interface {
	Add(ctx context.Context, log domain.DeliveryLog) error
}

type MemoryDeliveryLogsRepository struct {
	mu     sync.Mutex
	nextID int64
	logs   []domain.DeliveryLog
}

func NewMemoryDeliveryLogsRepository() *MemoryDeliveryLogsRepository {
	return &MemoryDeliveryLogsRepository{}
}

func (r *MemoryDeliveryLogsRepository) Add(_ context.Context, log domain.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	log.ID = r.nextID
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *MemoryDeliveryLogsRepository) All() []domain.DeliveryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DeliveryLog(nil), r.logs...)
}
