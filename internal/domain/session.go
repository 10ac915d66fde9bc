package domain

import (
	"regexp"
	"time"
)

type CheckoutStep string

const (
	StepCart      CheckoutStep = "CART"
	StepShipping  CheckoutStep = "SHIPPING"
	StepPayment   CheckoutStep = "PAYMENT"
	StepConfirmed CheckoutStep = "CONFIRMED"
)

func (s CheckoutStep) IsTerminal() bool {
	return s == StepConfirmed
}

// String representation (for logging)
func (s CheckoutStep) String() string {
	return string(s)
}

var allowedTransitions = map[CheckoutStep]CheckoutStep{
	StepCart:     StepShipping,
	StepShipping: StepPayment,
	StepPayment:  StepConfirmed,
}

// CanTransitionTo reports whether the checkout may advance from one step to
// the next. Expiry is not a step: an expired session keeps its stored step so
// recovery lands the guest exactly where they left off.
func CanTransitionTo(from, to CheckoutStep) bool {
	next, ok := allowedTransitions[from]
	return ok && next == to
}

// GuestSession is the unauthenticated checkout context. Possession of the
// token is the only credential; no login is ever required.
type GuestSession struct {
	Token     string           `json:"token"`
	Step      CheckoutStep     `json:"step"`
	Email     string           `json:"email,omitempty"`
	Cart      CartSnapshot     `json:"cart"`
	Applied   *AppliedDiscount `json:"applied_discount,omitempty"`
	Revision  uint64           `json:"revision"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// CartFrozen reports whether cart and discount mutations are locked out.
// Once payment begins the snapshot is immutable.
func (s *GuestSession) CartFrozen() bool {
	return s.Step == StepPayment || s.Step == StepConfirmed
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail is a format check only, not a deliverability check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
