package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/orders"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/store"
	"github.com/google/uuid"
)

// ConfirmationDispatcher hands a confirmed order to the email pipeline.
// Enqueue must be idempotent by order ID.
type ConfirmationDispatcher interface {
	Enqueue(order *domain.Order, successAt time.Time) bool
}

// Service owns the guest checkout lifecycle: it is the only writer of
// session state, and it delegates pricing and discount work to their
// packages on every relevant mutation.
type Service struct {
	sessions   store.SessionStore
	orders     orders.OrderRepository
	dispatcher ConfirmationDispatcher
	clock      clock.Clock
	shipping   pricing.ShippingPolicy
}

func NewService(
	sessions store.SessionStore,
	orderRepo orders.OrderRepository,
	dispatcher ConfirmationDispatcher,
	clk clock.Clock,
	shipping pricing.ShippingPolicy,
) *Service {
	return &Service{
		sessions:   sessions,
		orders:     orderRepo,
		dispatcher: dispatcher,
		clock:      clk,
		shipping:   shipping,
	}
}

// StartSession opens a fresh unauthenticated checkout session at the cart step.
func (s *Service) StartSession(ctx context.Context) (*domain.GuestSession, error) {
	session, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession returns the session and its current total.
func (s *Service) GetSession(ctx context.Context, token string) (*domain.GuestSession, pricing.Total, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, pricing.Total{}, err
	}
	return session, pricing.Recompute(session.Cart, session.Applied, s.shipping), nil
}

// Quote recomputes the total for the session as it stands. It backs the
// recalculation endpoint: no navigation, no cached value.
func (s *Service) Quote(ctx context.Context, token string) (pricing.Total, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return pricing.Total{}, err
	}
	return pricing.Recompute(session.Cart, session.Applied, s.shipping), nil
}

// AddItem merges the item into the cart (quantities accumulate per SKU) and
// returns the recomputed total.
func (s *Service) AddItem(ctx context.Context, token string, item domain.CartItem) (pricing.Total, error) {
	if item.Quantity <= 0 {
		return pricing.Total{}, ErrInvalidQuantity
	}

	updated, err := s.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if session.CartFrozen() {
			return ErrCartLocked
		}
		for i := range session.Cart.Items {
			if session.Cart.Items[i].SKU == item.SKU {
				session.Cart.Items[i].Quantity += item.Quantity
				return nil
			}
		}
		session.Cart.Items = append(session.Cart.Items, item)
		return nil
	})
	if err != nil {
		return pricing.Total{}, err
	}
	return pricing.Recompute(updated.Cart, updated.Applied, s.shipping), nil
}

func (s *Service) UpdateQuantity(ctx context.Context, token, sku string, quantity int32) (pricing.Total, error) {
	if quantity <= 0 {
		return pricing.Total{}, ErrInvalidQuantity
	}

	updated, err := s.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if session.CartFrozen() {
			return ErrCartLocked
		}
		for i := range session.Cart.Items {
			if session.Cart.Items[i].SKU == sku {
				session.Cart.Items[i].Quantity = quantity
				return nil
			}
		}
		return ErrItemNotFound
	})
	if err != nil {
		return pricing.Total{}, err
	}
	return pricing.Recompute(updated.Cart, updated.Applied, s.shipping), nil
}

func (s *Service) RemoveItem(ctx context.Context, token, sku string) (pricing.Total, error) {
	updated, err := s.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if session.CartFrozen() {
			return ErrCartLocked
		}
		for i := range session.Cart.Items {
			if session.Cart.Items[i].SKU == sku {
				session.Cart.Items = append(session.Cart.Items[:i], session.Cart.Items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
	if err != nil {
		return pricing.Total{}, err
	}
	return pricing.Recompute(updated.Cart, updated.Applied, s.shipping), nil
}

// AdvanceToShipping moves the session from cart to shipping. A non-empty
// cart is the only requirement; no email, no account.
func (s *Service) AdvanceToShipping(ctx context.Context, token string) (*domain.GuestSession, error) {
	updated, err := s.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if !domain.CanTransitionTo(session.Step, domain.StepShipping) {
			return ErrIllegalTransition
		}
		if session.Cart.IsEmpty() {
			return ErrEmptyCart
		}
		session.Step = domain.StepShipping
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.renewTTL(ctx, token)
	return updated, nil
}

// SubmitEmail captures the guest's email and moves the session to payment.
// The check is syntactic only; deliverability is not our gate.
func (s *Service) SubmitEmail(ctx context.Context, token, email string) (*domain.GuestSession, error) {
	if !domain.ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	updated, err := s.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if !domain.CanTransitionTo(session.Step, domain.StepPayment) {
			return ErrIllegalTransition
		}
		session.Email = email
		session.Step = domain.StepPayment
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.renewTTL(ctx, token)
	return updated, nil
}

// confirmableFrom returns the step a payment-success signal may confirm
// from. Whether a fully-discounted (zero-total) order still transits payment
// is an unresolved policy point; the conservative default keeps every order
// on the payment path. Changing the policy means changing this function, not
// the transition graph.
func confirmableFrom(_ pricing.Total) domain.CheckoutStep {
	return domain.StepPayment
}

// HandlePaymentSuccess is the terminal transition. It freezes the snapshot
// and discount, archives the order exactly once, and hands off to the
// confirmation dispatcher. Duplicate signals for the same session return the
// already-archived order without side effects, and a signal landing after
// the session TTL but within the grace window recovers the session first:
// the guest already paid, so the checkout must complete.
func (s *Service) HandlePaymentSuccess(ctx context.Context, token, paymentID string) (*domain.Order, error) {
	// retried webhook; not an error to anyone
	archived, archErr := s.orders.GetOrderBySessionToken(ctx, token)
	if archErr == nil {
		log.Printf("duplicate payment success for session %s (payment %s), returning archived order", token, paymentID)
		return archived, nil
	}
	if !errors.Is(archErr, orders.ErrOrderNotFound) {
		return nil, fmt.Errorf("look up archived order: %w", archErr)
	}

	session, err := s.sessions.Get(ctx, token)
	if errors.Is(err, store.ErrSessionExpiredRecoverable) {
		// The guest was at the payment gateway while the TTL lapsed. The
		// charge went through, so the session resumes for its confirmation.
		session, err = s.sessions.Recover(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	total := pricing.Recompute(session.Cart, session.Applied, s.shipping)
	if session.Step != confirmableFrom(total) {
		return nil, ErrIllegalTransition
	}

	order := &domain.Order{
		ID:             uuid.New(),
		SessionToken:   session.Token,
		Email:          session.Email,
		Items:          session.Cart.Clone().Items,
		Currency:       session.Cart.Currency,
		Subtotal:       total.Subtotal,
		ShippingCost:   total.ShippingCost,
		DiscountAmount: total.Discount,
		TotalAmount:    total.GrandTotal,
		CreatedAt:      s.clock.Now(),
	}

	// The archive's unique session key is the dedup authority: a race
	// between two identical signals resolves here.
	if createErr := s.orders.CreateOrder(ctx, order); createErr != nil {
		if errors.Is(createErr, orders.ErrDuplicateSession) {
			log.Printf("order for session %s already archived, skipping duplicate payment %s", token, paymentID)
			return s.orders.GetOrderBySessionToken(ctx, token)
		}
		return nil, fmt.Errorf("archive order: %w", createErr)
	}

	if _, updateErr := s.sessions.Update(ctx, token, func(session *domain.GuestSession) error {
		if !domain.CanTransitionTo(session.Step, domain.StepConfirmed) {
			return ErrIllegalTransition
		}
		session.Step = domain.StepConfirmed
		return nil
	}); updateErr != nil {
		// the order stands regardless
		log.Printf("failed to confirm session %s after archiving order %v: %v", token, order.ID, updateErr)
	}

	// The checkout is over: the archive is the record from here on, and the
	// session is destroyed rather than left to age out.
	if delErr := s.sessions.Delete(ctx, token); delErr != nil {
		log.Printf("failed to delete session %s after archiving order %v: %v", token, order.ID, delErr)
	}

	s.dispatcher.Enqueue(order, s.clock.Now())
	return order, nil
}

// Recover resumes an expired-but-recognized session within its grace
// window, at the step it was left in.
func (s *Service) Recover(ctx context.Context, token string) (*domain.GuestSession, pricing.Total, error) {
	session, err := s.sessions.Recover(ctx, token)
	if err != nil {
		return nil, pricing.Total{}, err
	}
	return session, pricing.Recompute(session.Cart, session.Applied, s.shipping), nil
}

// renewTTL extends the session on step transitions. Failure here is not
// fatal to the transition that already committed.
func (s *Service) renewTTL(ctx context.Context, token string) {
	if err := s.sessions.Touch(ctx, token); err != nil {
		log.Printf("failed to renew session %s ttl: %v", token, err)
	}
}
