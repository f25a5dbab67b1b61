//go:generate mockgen -package=mocks -source=idempotency_repository.go -destination=mocks/mock_idempotency_repository.go

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
)

var (
	// ErrLockLost is returned by Persist and ReleaseLock when the caller's token
	// no longer owns the lock (it went stale and was reclaimed).
	ErrLockLost = errors.New("idempotency lock is no longer held by this caller")
	// ErrStoreUnavailable wraps backend failures
	ErrStoreUnavailable = errors.New("idempotency store unavailable")
	// ErrConstraintViolation is returned when the backend rejects a row
	ErrConstraintViolation = errors.New("idempotency record violates a store constraint")
)

// LockToken identifies the holder of a lock
type LockToken string

// LockResult is the outcome of TryAcquireLock
type LockResult struct {
	Acquired bool
	// Token is set when Acquired is true
	Token LockToken
	// HeldUntil is when the current holder's lock goes stale. Set when Acquired
	// is false and the identity is locked rather than already completed.
	HeldUntil time.Time
}

// KeyStore stores cached responses and processing locks per composite identity.
// Implementations must be safe for concurrent use.
type KeyStore interface {
	// Lookup returns the cached response for id. Expired entries are reported as
	// not found and may be deleted opportunistically.
	Lookup(ctx context.Context, id entity.CompositeIdentity) (*entity.CachedResponse, bool, error)

	// TryAcquireLock atomically claims exclusive processing rights for id. A lock
	// older than its timeout is treated as absent and may be reclaimed.
	TryAcquireLock(ctx context.Context, id entity.CompositeIdentity, timeout time.Duration) (LockResult, error)

	// Persist stores resp for ttl and releases the lock held by token in one
	// atomic step.
	Persist(ctx context.Context, id entity.CompositeIdentity, token LockToken, resp *entity.CachedResponse, ttl time.Duration) error

	// ReleaseLock drops the lock held by token without storing a response
	ReleaseLock(ctx context.Context, id entity.CompositeIdentity, token LockToken) error
}

// ExpiredSweeper is implemented by stores that need an active cleanup pass
type ExpiredSweeper interface {
	// DeleteExpired removes expired responses and stale locks
	DeleteExpired(ctx context.Context) (int64, error)
}
