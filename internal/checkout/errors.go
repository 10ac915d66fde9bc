package checkout

import "errors"

var (
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition = errors.New("illegal transition of checkout step")
	ErrCartLocked        = errors.New("cart is locked once payment has started")
	ErrInvalidEmail      = errors.New("email address is not valid")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrItemNotFound      = errors.New("item not found in cart")
)
