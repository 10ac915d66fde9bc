package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/google/uuid"
)

const (
	// DefaultSessionTTL is how long a session stays live without activity
	DefaultSessionTTL = 30 * time.Minute

	// DefaultGraceWindow is how long after expiry the cart is still
	// retained for recovery
	DefaultGraceWindow = 24 * time.Hour

	// CleanupInterval is how often the background sweeper runs
	CleanupInterval = time.Minute
)

type entry struct {
	mu      sync.Mutex
	session *domain.GuestSession
}

// MemoryStore implements SessionStore with in-memory storage. The map lock
// only guards lookups; each session carries its own mutex, so the critical
// section of an Update never blocks other sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl   time.Duration
	grace time.Duration
	clock clock.Clock

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

// NewMemoryStore creates an in-memory session store and starts the sweeper
// that removes sessions whose grace window has passed.
func NewMemoryStore(ttl, grace time.Duration, clk clock.Clock) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		ttl:         ttl,
		grace:       grace,
		clock:       clk,
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCleanup:
			return
		}
	}
}

// sweep drops sessions whose grace window has passed. Merely expired
// sessions are kept: their cart is still recoverable.
func (s *MemoryStore) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.entries {
		if now.After(e.session.ExpiresAt.Add(s.grace)) {
			delete(s.entries, token)
		}
	}
}

func (s *MemoryStore) Create(_ context.Context) (*domain.GuestSession, error) {
	now := s.clock.Now()
	session := &domain.GuestSession{
		Token:     uuid.New().String(),
		Step:      domain.StepCart,
		Cart:      domain.CartSnapshot{Currency: "USD"},
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.entries[session.Token] = &entry{session: session}
	s.mu.Unlock()

	return copySession(session), nil
}

func (s *MemoryStore) lookup(token string) (*entry, error) {
	s.mu.RLock()
	e, exists := s.entries[token]
	s.mu.RUnlock()
	if !exists {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// expiryState classifies a session against the clock. Callers must hold the
// entry lock.
func (s *MemoryStore) expiryState(session *domain.GuestSession) error {
	now := s.clock.Now()
	if now.Before(session.ExpiresAt) {
		return nil
	}
	if now.Before(session.ExpiresAt.Add(s.grace)) {
		return ErrSessionExpiredRecoverable
	}
	return ErrSessionExpiredTerminal
}

func (s *MemoryStore) Get(_ context.Context, token string) (*domain.GuestSession, error) {
	e, err := s.lookup(token)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if stateErr := s.expiryState(e.session); stateErr != nil {
		return nil, stateErr
	}
	return copySession(e.session), nil
}

func (s *MemoryStore) Update(_ context.Context, token string, mutate Mutator) (*domain.GuestSession, error) {
	e, err := s.lookup(token)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if stateErr := s.expiryState(e.session); stateErr != nil {
		return nil, stateErr
	}

	// Mutate a copy so a failed mutator leaves the session untouched.
	next := copySession(e.session)
	if mutateErr := mutate(next); mutateErr != nil {
		return nil, mutateErr
	}

	next.Revision = e.session.Revision + 1
	e.session = next
	return copySession(next), nil
}

func (s *MemoryStore) Touch(_ context.Context, token string) error {
	e, err := s.lookup(token)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if stateErr := s.expiryState(e.session); stateErr != nil {
		return stateErr
	}

	e.session.ExpiresAt = s.clock.Now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Recover(_ context.Context, token string) (*domain.GuestSession, error) {
	e, err := s.lookup(token)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if stateErr := s.expiryState(e.session); errors.Is(stateErr, ErrSessionExpiredTerminal) {
		return nil, stateErr
	}

	// Live or within the grace window: renew the TTL. The session keeps its
	// stored step and cart, so the guest resumes exactly where they left off.
	e.session.ExpiresAt = s.clock.Now().Add(s.ttl)
	return copySession(e.session), nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[token]; !exists {
		return ErrSessionNotFound
	}
	delete(s.entries, token)
	return nil
}

// Close stops the background sweeper and waits for it to finish
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

func copySession(session *domain.GuestSession) *domain.GuestSession {
	out := *session
	out.Cart = session.Cart.Clone()
	if session.Applied != nil {
		applied := *session.Applied
		out.Applied = &applied
	}
	return &out
}
