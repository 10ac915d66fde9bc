package checkout

import (
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/google/uuid"
)

// MockDispatcher implements ConfirmationDispatcher for testing, with the
// same order-ID dedup contract as the real one.
type MockDispatcher struct {
	mu       sync.Mutex
	enqueued map[uuid.UUID]struct{}
	Orders   []*domain.Order
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{enqueued: make(map[uuid.UUID]struct{})}
}

func (m *MockDispatcher) Enqueue(order *domain.Order, _ time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.enqueued[order.ID]; exists {
		return false
	}
	m.enqueued[order.ID] = struct{}{}
	m.Orders = append(m.Orders, order)
	return true
}

func (m *MockDispatcher) EnqueueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}
