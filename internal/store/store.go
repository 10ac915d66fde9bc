package store

import (
	"context"
	"errors"

	"github.com/fjod/go_checkout/internal/domain"
)

// Common errors returned by the session store
var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpiredRecoverable means the TTL has lapsed but the grace
	// window is intact: the cart is retained and the session can be resumed.
	ErrSessionExpiredRecoverable = errors.New("session expired, recoverable within grace window")

	// ErrSessionExpiredTerminal means the grace window has passed too:
	// the cart is gone and the guest must start over.
	ErrSessionExpiredTerminal = errors.New("session expired past grace window")
)

// Mutator is applied to a session inside the store's per-token critical
// section. Returning an error aborts the update without mutating anything.
type Mutator func(session *domain.GuestSession) error

// SessionStore persists guest checkout sessions. Possession of a valid token
// is the only credential; no call requires authentication.
type SessionStore interface {
	// Create issues a new session at the cart step with a fresh TTL.
	Create(ctx context.Context) (*domain.GuestSession, error)

	// Get returns a copy of the session, or one of the expiry sentinels.
	Get(ctx context.Context, token string) (*domain.GuestSession, error)

	// Update runs the mutator atomically against this one session.
	// Mutations to different sessions proceed independently.
	Update(ctx context.Context, token string, mutate Mutator) (*domain.GuestSession, error)

	// Touch renews the TTL without mutating checkout state.
	Touch(ctx context.Context, token string) error

	// Recover resumes a session whose TTL lapsed but whose grace window is
	// intact, restoring it with a fresh TTL at the step it was left in.
	Recover(ctx context.Context, token string) (*domain.GuestSession, error)

	// Delete removes a session immediately, ahead of any expiry.
	Delete(ctx context.Context, token string) error

	// Close shuts down the store and any background processes.
	Close() error
}
