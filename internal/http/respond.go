package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/discount"
	"github.com/fjod/go_checkout/internal/orders"
	"github.com/fjod/go_checkout/internal/store"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps domain sentinels to HTTP statuses and stable error
// codes. The recoverable/terminal expiry split and the engine-unavailable vs
// invalid-code split must survive this mapping intact.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "no session for this token")
	case errors.Is(err, store.ErrSessionExpiredRecoverable):
		respondError(w, http.StatusGone, "session_expired_recoverable", "session expired, your cart is saved: recover to resume")
	case errors.Is(err, store.ErrSessionExpiredTerminal):
		respondError(w, http.StatusGone, "session_expired_terminal", "session expired and the cart is gone, please start over")
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", "cart is empty")
	case errors.Is(err, checkout.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", "checkout cannot move to that step from here")
	case errors.Is(err, checkout.ErrCartLocked), errors.Is(err, discount.ErrLocked):
		respondError(w, http.StatusConflict, "checkout_locked", "checkout is locked once payment has started")
	case errors.Is(err, checkout.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid_email", "email address is not valid")
	case errors.Is(err, checkout.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
	case errors.Is(err, checkout.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "item not found in cart")
	case errors.Is(err, discount.ErrAlreadyApplied):
		respondError(w, http.StatusConflict, "discount_already_applied", "a discount code is already applied, remove it first")
	case errors.Is(err, discount.ErrExpired):
		respondError(w, http.StatusUnprocessableEntity, "discount_expired", "this discount code has expired")
	case errors.Is(err, discount.ErrNotApplicable):
		respondError(w, http.StatusUnprocessableEntity, "discount_not_applicable", "this code does not apply to the items in your cart")
	case errors.Is(err, discount.ErrInvalidCode):
		respondError(w, http.StatusUnprocessableEntity, "discount_invalid", "this discount code is not recognized")
	case errors.Is(err, discount.ErrEngineUnavailable):
		respondError(w, http.StatusServiceUnavailable, "discount_engine_unavailable", "could not check the code right now, try again")
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	default:
		log.Printf("request %s failed: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
