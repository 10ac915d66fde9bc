package orders

import (
	"context"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository implements OrderRepository in memory, for local runs and
// tests. The one-order-per-session invariant is enforced the same way the
// Postgres unique index enforces it.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*domain.Order
	bySession map[string]*domain.Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[uuid.UUID]*domain.Order),
		bySession: make(map[string]*domain.Order),
	}
}

func (r *MemoryRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[order.SessionToken]; exists {
		return ErrDuplicateSession
	}

	stored := *order
	r.byID[order.ID] = &stored
	r.bySession[order.SessionToken] = &stored
	return nil
}

func (r *MemoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.byID[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	out := *order
	return &out, nil
}

func (r *MemoryRepository) GetOrderBySessionToken(_ context.Context, token string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.bySession[token]
	if !exists {
		return nil, ErrOrderNotFound
	}
	out := *order
	return &out, nil
}

func (r *MemoryRepository) RunMigrations(*Credentials) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
