package discount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/store"
	"golang.org/x/sync/singleflight"
)

var (
	ErrAlreadyApplied = errors.New("a discount code is already applied to this order")
	ErrExpired        = errors.New("discount code has expired")
	ErrNotApplicable  = errors.New("discount code does not apply to the items in this cart")
	ErrInvalidCode    = errors.New("discount code is not recognized")

	// ErrEngineUnavailable is an infrastructure fault, never to be
	// conflated with an invalid code. Callers surface it as "try again".
	ErrEngineUnavailable = errors.New("discount engine unavailable, try again")

	// ErrLocked: discount changes are frozen once payment begins
	ErrLocked = errors.New("discount cannot be changed once payment has started")
)

const (
	validateAttempts = 3
	validateBackoff  = 150 * time.Millisecond
)

// Resolver applies and removes discount codes on guest sessions. Engine
// calls happen outside the per-session critical section; only the final
// write of the resolved discount takes the session lock.
type Resolver struct {
	sessions store.SessionStore
	engine   Engine
	shipping pricing.ShippingPolicy
	clock    clock.Clock
	sfg      singleflight.Group // collapses rapid re-validation of the same code
}

func NewResolver(sessions store.SessionStore, engine Engine, shipping pricing.ShippingPolicy, clk clock.Clock) *Resolver {
	return &Resolver{
		sessions: sessions,
		engine:   engine,
		shipping: shipping,
		clock:    clk,
	}
}

// Apply validates the code against the session's cart and, on success,
// writes the resolved discount atomically and returns the recomputed total.
func (r *Resolver) Apply(ctx context.Context, token, code string) (*domain.AppliedDiscount, pricing.Total, error) {
	session, err := r.sessions.Get(ctx, token)
	if err != nil {
		return nil, pricing.Total{}, err
	}

	// one code per order
	if session.Applied != nil {
		return nil, pricing.Total{}, ErrAlreadyApplied
	}
	if session.CartFrozen() {
		return nil, pricing.Total{}, ErrLocked
	}

	outcome, err := r.validate(ctx, token, code, session.Cart.Items)
	if err != nil {
		return nil, pricing.Total{}, err
	}

	if !outcome.Valid {
		return nil, pricing.Total{}, classifyRejection(outcome.Reason)
	}

	// The amount is resolved inside the mutator against the snapshot as it
	// is at write time, not as it was when validation started.
	var applied *domain.AppliedDiscount
	updated, err := r.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if session.Applied != nil {
			return ErrAlreadyApplied
		}
		if session.CartFrozen() {
			return ErrLocked
		}
		applied = &domain.AppliedDiscount{
			Code:           code,
			ResolvedAmount: resolveAmount(outcome, session.Cart.Subtotal()),
			AppliedAt:      r.clock.Now(),
		}
		session.Applied = applied
		return nil
	})
	if err != nil {
		return nil, pricing.Total{}, err
	}

	return applied, pricing.Recompute(updated.Cart, updated.Applied, r.shipping), nil
}

// Remove clears the applied discount. It is legal whether or not a discount
// is present, as long as payment has not started.
func (r *Resolver) Remove(ctx context.Context, token string) (pricing.Total, error) {
	updated, err := r.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if session.CartFrozen() {
			return ErrLocked
		}
		session.Applied = nil
		return nil
	})
	if err != nil {
		return pricing.Total{}, err
	}
	return pricing.Recompute(updated.Cart, nil, r.shipping), nil
}

// validate calls the engine with retries and collapses concurrent identical
// requests (repeated discount-field edits) into one round trip.
func (r *Resolver) validate(ctx context.Context, token, code string, items []domain.CartItem) (*domain.DiscountOutcome, error) {
	key := fmt.Sprintf("%s:%s", token, code)
	v, err, _ := r.sfg.Do(key, func() (interface{}, error) {
		var lastErr error
		for attempt := 1; attempt <= validateAttempts; attempt++ {
			outcome, callErr := r.engine.Validate(ctx, code, items)
			if callErr == nil {
				return outcome, nil
			}
			lastErr = callErr
			log.Printf("discount engine attempt %d failed: %v", attempt, callErr)

			select {
			case <-time.After(time.Duration(attempt) * validateBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, lastErr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DiscountOutcome), nil
}

func classifyRejection(reason domain.DiscountReason) error {
	switch reason {
	case domain.DiscountReasonExpired:
		return ErrExpired
	case domain.DiscountReasonNotApplicable:
		return ErrNotApplicable
	default:
		return ErrInvalidCode
	}
}

// resolveAmount turns the engine's tagged outcome into a single monetary
// amount against the pre-shipping subtotal.
func resolveAmount(outcome *domain.DiscountOutcome, subtotal float64) float64 {
	switch outcome.Type {
	case domain.DiscountTypePercentage:
		return subtotal * outcome.Percentage / 100.0
	case domain.DiscountTypeFlat:
		return outcome.FlatAmount
	case domain.DiscountTypeBoth:
		return resolveBoth(outcome, subtotal)
	default:
		return 0
	}
}

// resolveBoth picks between the percentage and flat representations when the
// engine returns both. Current policy: the larger discount to the customer.
// Kept separate so an engine-priority policy can replace it in one place.
func resolveBoth(outcome *domain.DiscountOutcome, subtotal float64) float64 {
	pct := subtotal * outcome.Percentage / 100.0
	if pct > outcome.FlatAmount {
		return pct
	}
	return outcome.FlatAmount
}
