package orders

import (
	"context"
	"errors"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateSession means an order already exists for this checkout
	// session; payment-success retries land here and are not an error to
	// the guest.
	ErrDuplicateSession = errors.New("order for this session already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderRepository archives immutable orders. Exactly one order may exist per
// checkout session.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderBySessionToken(ctx context.Context, token string) (*domain.Order, error)
	RunMigrations(*Credentials) error
	Close() error
}
