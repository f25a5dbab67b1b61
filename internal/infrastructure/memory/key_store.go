// Package memory provides a process-local KeyStore.
//
// The store is correct only within one running instance: two replicas behind a
// load balancer each hold their own map and will both execute a duplicate.
// Use the redis or postgres store for multi-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
)

type entry struct {
	resp      *entity.CachedResponse
	lockToken repository.LockToken
	lockUntil time.Time
}

func (e *entry) locked(now time.Time) bool {
	return e.lockToken != "" && now.Before(e.lockUntil)
}

// KeyStore is an in-memory implementation of repository.KeyStore.
// A single mutex guards the map, so every operation is linearizable.
type KeyStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// Option configures a KeyStore
type Option func(*KeyStore)

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *KeyStore) {
		s.now = now
	}
}

// NewKeyStore creates an empty store
func NewKeyStore(opts ...Option) *KeyStore {
	s := &KeyStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns the cached response for id if present and not expired
func (s *KeyStore) Lookup(ctx context.Context, id entity.CompositeIdentity) (*entity.CachedResponse, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.String()
	e, ok := s.entries[key]
	if !ok || e.resp == nil {
		return nil, false, nil
	}
	if e.resp.IsExpired(s.now()) {
		e.resp = nil
		s.dropIfEmptyLocked(key, e)
		return nil, false, nil
	}
	return e.resp, true, nil
}

// TryAcquireLock claims id unless a live response or a non-stale lock exists
func (s *KeyStore) TryAcquireLock(ctx context.Context, id entity.CompositeIdentity, timeout time.Duration) (repository.LockResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.LockResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := id.String()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}

	if e.resp != nil && !e.resp.IsExpired(now) {
		return repository.LockResult{Acquired: false}, nil
	}
	if e.locked(now) {
		return repository.LockResult{Acquired: false, HeldUntil: e.lockUntil}, nil
	}

	token := repository.LockToken(uuid.NewString())
	e.resp = nil
	e.lockToken = token
	e.lockUntil = now.Add(timeout)
	return repository.LockResult{Acquired: true, Token: token}, nil
}

// Persist stores resp and releases the caller's lock under one mutex hold
func (s *KeyStore) Persist(ctx context.Context, id entity.CompositeIdentity, token repository.LockToken, resp *entity.CachedResponse, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id.String()]
	if !ok || e.lockToken != token {
		return repository.ErrLockLost
	}

	stored := *resp
	stored.ExpiresAt = stored.CreatedAt.Add(ttl)
	e.resp = &stored
	e.lockToken = ""
	e.lockUntil = time.Time{}
	return nil
}

// ReleaseLock drops the caller's lock
func (s *KeyStore) ReleaseLock(ctx context.Context, id entity.CompositeIdentity, token repository.LockToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.String()
	e, ok := s.entries[key]
	if !ok || e.lockToken != token {
		return repository.ErrLockLost
	}
	e.lockToken = ""
	e.lockUntil = time.Time{}
	s.dropIfEmptyLocked(key, e)
	return nil
}

// DeleteExpired removes expired responses and stale locks
func (s *KeyStore) DeleteExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, e := range s.entries {
		if e.resp != nil && e.resp.IsExpired(now) {
			e.resp = nil
		}
		if e.lockToken != "" && !e.locked(now) {
			e.lockToken = ""
			e.lockUntil = time.Time{}
		}
		if e.resp == nil && e.lockToken == "" {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// dropIfEmptyLocked removes an entry holding neither a response nor a lock.
// Must be called with the mutex held.
func (s *KeyStore) dropIfEmptyLocked(key string, e *entry) {
	if e.resp == nil && e.lockToken == "" {
		delete(s.entries, key)
	}
}

// Stats returns current statistics about the store
func (s *KeyStore) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	responses, locks := 0, 0
	for _, e := range s.entries {
		if e.resp != nil && !e.resp.IsExpired(now) {
			responses++
		}
		if e.locked(now) {
			locks++
		}
	}
	return map[string]interface{}{
		"entries":      len(s.entries),
		"responses":    responses,
		"active_locks": locks,
	}
}

var _ repository.KeyStore = (*KeyStore)(nil)
var _ repository.ExpiredSweeper = (*KeyStore)(nil)
