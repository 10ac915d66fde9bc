package pricing

import "github.com/fjod/go_checkout/internal/domain"

const (
	// FreeShippingThreshold is compared against the pre-discount subtotal.
	FreeShippingThreshold = 50.00

	// FlatShippingCost applies below the threshold.
	FlatShippingCost = 5.99
)

// Total is the full price breakdown for a session.
type Total struct {
	Subtotal     float64 `json:"subtotal"`
	ShippingCost float64 `json:"shipping_cost"`
	Discount     float64 `json:"discount"`
	GrandTotal   float64 `json:"grand_total"`
}

// ShippingPolicy maps a subtotal to a shipping cost. It is a swappable
// function value because whether the threshold sees the pre- or post-discount
// subtotal is a policy choice, not arithmetic.
type ShippingPolicy func(subtotal float64) float64

// StandardShipping: free at or above the threshold, flat cost below.
func StandardShipping(subtotal float64) float64 {
	if subtotal >= FreeShippingThreshold {
		return 0
	}
	return FlatShippingCost
}

// Recompute derives the total from the current cart and discount. It is a
// pure function: same snapshot and discount always produce the same Total,
// so concurrent or out-of-order recomputations cannot corrupt anything.
func Recompute(cart domain.CartSnapshot, applied *domain.AppliedDiscount, shipping ShippingPolicy) Total {
	subtotal := cart.Subtotal()

	var discount float64
	if applied != nil {
		discount = applied.ResolvedAmount
	}

	// Shipping is evaluated on the pre-discount subtotal.
	shippingCost := shipping(subtotal)

	grand := subtotal + shippingCost - discount
	if grand < 0 {
		grand = 0
	}

	return Total{
		Subtotal:     subtotal,
		ShippingCost: shippingCost,
		Discount:     discount,
		GrandTotal:   grand,
	}
}
