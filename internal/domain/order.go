package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order is created exactly once, on successful payment confirmation, and is
// immutable thereafter.
type Order struct {
	ID             uuid.UUID  `json:"id"`
	SessionToken   string     `json:"session_token"`
	Email          string     `json:"email"`
	Items          []CartItem `json:"items"`
	Currency       string     `json:"currency"`
	Subtotal       float64    `json:"subtotal"`
	ShippingCost   float64    `json:"shipping_cost"`
	DiscountAmount float64    `json:"discount_amount"`
	TotalAmount    float64    `json:"total_amount"`
	CreatedAt      time.Time  `json:"created_at"`
}
