package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
)

// OrderRepository keeps demo orders in memory
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*entity.Order
}

// NewOrderRepository creates an empty order repository
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[uuid.UUID]*entity.Order)}
}

// Create stores a new order
func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order.Clone()
	return nil
}

// GetByID returns nil when the order does not exist
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return order.Clone(), nil
}

// Update replaces an existing order
func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order.Clone()
	return nil
}

// Count returns how many orders exist
func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.orders)), nil
}

var _ repository.OrderRepository = (*OrderRepository)(nil)
