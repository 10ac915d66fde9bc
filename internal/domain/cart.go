package domain

type CartItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// CartSnapshot is the ordered cart state held inside a session. It is frozen
// once the session enters the payment step.
type CartSnapshot struct {
	Items    []CartItem `json:"items"`
	Currency string     `json:"currency"`
}

func (c CartSnapshot) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal is the pre-shipping, pre-discount item total.
func (c CartSnapshot) Subtotal() float64 {
	var sum float64
	for _, item := range c.Items {
		sum += item.UnitPrice * float64(item.Quantity)
	}
	return sum
}

// Clone returns a deep copy so callers can hand out snapshots without
// aliasing the session's backing slice.
func (c CartSnapshot) Clone() CartSnapshot {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return CartSnapshot{Items: items, Currency: c.Currency}
}
