package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements SessionStore on Redis. The key TTL covers the grace
// window too, so Redis drops a session only once it is unrecoverable; the
// recoverable/terminal distinction comes from the session's own ExpiresAt.
// Per-token serialization of Update is process-local (one logical lock per
// key), which assumes a single writer process per session.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	grace  time.Duration
	clock  clock.Clock

	locks sync.Map // token -> *sync.Mutex
}

func NewRedisStore(client *redis.Client, ttl, grace time.Duration, clk clock.Clock) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		grace:  grace,
		clock:  clk,
	}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (r *RedisStore) lockFor(token string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(token, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (r *RedisStore) Create(ctx context.Context) (*domain.GuestSession, error) {
	now := r.clock.Now()
	session := &domain.GuestSession{
		Token:     uuid.New().String(),
		Step:      domain.StepCart,
		Cart:      domain.CartSnapshot{Currency: "USD"},
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	if err := r.write(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *RedisStore) write(ctx context.Context, session *domain.GuestSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}

	keyTTL := session.ExpiresAt.Add(r.grace).Sub(r.clock.Now())
	ret := r.client.Set(ctx, sessionKey(session.Token), data, keyTTL)
	if ret.Err() != nil {
		return fmt.Errorf("redis set failed: %w", ret.Err())
	}
	return nil
}

func (r *RedisStore) read(ctx context.Context, token string) (*domain.GuestSession, error) {
	data, err := r.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session domain.GuestSession
	if err2 := json.Unmarshal(data, &session); err2 != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err2)
	}
	return &session, nil
}

func (r *RedisStore) expiryState(session *domain.GuestSession) error {
	now := r.clock.Now()
	if now.Before(session.ExpiresAt) {
		return nil
	}
	if now.Before(session.ExpiresAt.Add(r.grace)) {
		return ErrSessionExpiredRecoverable
	}
	return ErrSessionExpiredTerminal
}

func (r *RedisStore) Get(ctx context.Context, token string) (*domain.GuestSession, error) {
	session, err := r.read(ctx, token)
	if err != nil {
		return nil, err
	}
	if stateErr := r.expiryState(session); stateErr != nil {
		return nil, stateErr
	}
	return session, nil
}

func (r *RedisStore) Update(ctx context.Context, token string, mutate Mutator) (*domain.GuestSession, error) {
	mu := r.lockFor(token)
	mu.Lock()
	defer mu.Unlock()

	session, err := r.read(ctx, token)
	if err != nil {
		return nil, err
	}
	if stateErr := r.expiryState(session); stateErr != nil {
		return nil, stateErr
	}

	if mutateErr := mutate(session); mutateErr != nil {
		return nil, mutateErr
	}
	session.Revision++

	if writeErr := r.write(ctx, session); writeErr != nil {
		return nil, writeErr
	}
	return session, nil
}

func (r *RedisStore) Touch(ctx context.Context, token string) error {
	mu := r.lockFor(token)
	mu.Lock()
	defer mu.Unlock()

	session, err := r.read(ctx, token)
	if err != nil {
		return err
	}
	if stateErr := r.expiryState(session); stateErr != nil {
		return stateErr
	}

	session.ExpiresAt = r.clock.Now().Add(r.ttl)
	return r.write(ctx, session)
}

func (r *RedisStore) Recover(ctx context.Context, token string) (*domain.GuestSession, error) {
	mu := r.lockFor(token)
	mu.Lock()
	defer mu.Unlock()

	session, err := r.read(ctx, token)
	if err != nil {
		return nil, err
	}
	if stateErr := r.expiryState(session); errors.Is(stateErr, ErrSessionExpiredTerminal) {
		return nil, stateErr
	}

	session.ExpiresAt = r.clock.Now().Add(r.ttl)
	if writeErr := r.write(ctx, session); writeErr != nil {
		return nil, writeErr
	}
	return session, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	r.locks.Delete(token)
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
