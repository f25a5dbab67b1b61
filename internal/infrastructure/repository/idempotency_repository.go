package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	domainRepo "github.com/sangkips/idempotency-gateway/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// idempotencyRepository is the relational KeyStore.
//
// The unique index over (route, method, key) makes first-insert-wins atomic in
// the database: TryAcquireLock inserts an unprocessed row with ON CONFLICT DO
// NOTHING, and a stale row is taken over with a compare-and-swap UPDATE on its
// previous lock token. Persist flips the same row to processed, so the lock and
// the response are one record and there is never a window with neither. This
// backend is durable and correct across instances at the cost of a round trip
// per step.
type idempotencyRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// IdempotencyRepositoryOption configures the repository
type IdempotencyRepositoryOption func(*idempotencyRepository)

// WithRepositoryClock overrides the time source, used by tests
func WithRepositoryClock(now func() time.Time) IdempotencyRepositoryOption {
	return func(r *idempotencyRepository) {
		r.now = now
	}
}

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *gorm.DB, opts ...IdempotencyRepositoryOption) domainRepo.KeyStore {
	r := &idempotencyRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func identityColumns(id entity.CompositeIdentity) map[string]interface{} {
	return map[string]interface{}{
		"route":  id.Route,
		"method": id.Method,
		"key":    id.Key.String(),
	}
}

func (r *idempotencyRepository) find(ctx context.Context, id entity.CompositeIdentity) (*entity.IdempotencyRecord, error) {
	var rec entity.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where(identityColumns(id)).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find", err)
	}
	return &rec, nil
}

// Lookup returns the processed row for id if it has not expired
func (r *idempotencyRepository) Lookup(ctx context.Context, id entity.CompositeIdentity) (*entity.CachedResponse, bool, error) {
	rec, err := r.find(ctx, id)
	if err != nil || rec == nil || !rec.Processed {
		return nil, false, err
	}

	if rec.IsExpired(r.now()) {
		// Only delete the exact row we saw; a concurrent takeover changes the token.
		err := r.db.WithContext(ctx).
			Where(map[string]interface{}{"id": rec.ID, "lock_token": rec.LockToken}).
			Delete(&entity.IdempotencyRecord{}).Error
		if err != nil {
			return nil, false, classify("delete expired", err)
		}
		return nil, false, nil
	}
	return rec.ToCachedResponse(), true, nil
}

// TryAcquireLock inserts a lock row, or takes over an expired one. A row that
// disappears between the conflicting insert and the read is retried once.
func (r *idempotencyRepository) TryAcquireLock(ctx context.Context, id entity.CompositeIdentity, timeout time.Duration) (domainRepo.LockResult, error) {
	now := r.now()
	token := domainRepo.LockToken(uuid.NewString())

	for attempt := 0; ; attempt++ {
		existing, acquired, err := r.insertLock(ctx, id, token, now, timeout)
		if err != nil {
			return domainRepo.LockResult{}, err
		}
		if acquired {
			return domainRepo.LockResult{Acquired: true, Token: token}, nil
		}
		if existing != nil {
			return r.takeOver(ctx, existing, token, now, timeout)
		}
		if attempt == 1 {
			return domainRepo.LockResult{Acquired: false, HeldUntil: now.Add(timeout)}, nil
		}
	}
}

// insertLock claims id with a fresh row. When the row already exists it is
// returned instead; nil with acquired false means it vanished before the read.
func (r *idempotencyRepository) insertLock(ctx context.Context, id entity.CompositeIdentity, token domainRepo.LockToken, now time.Time, timeout time.Duration) (*entity.IdempotencyRecord, bool, error) {
	rec := entity.IdempotencyRecord{
		ID:        uuid.New(),
		Key:       id.Key.String(),
		Route:     id.Route,
		Method:    id.Method,
		LockToken: string(token),
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return nil, false, classify("insert lock", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil, true, nil
	}

	existing, err := r.find(ctx, id)
	return existing, false, err
}

// takeOver answers for an existing row: held, completed, or reclaimable
func (r *idempotencyRepository) takeOver(ctx context.Context, existing *entity.IdempotencyRecord, token domainRepo.LockToken, now time.Time, timeout time.Duration) (domainRepo.LockResult, error) {
	if !existing.IsExpired(now) {
		if existing.Processed {
			return domainRepo.LockResult{Acquired: false}, nil
		}
		return domainRepo.LockResult{Acquired: false, HeldUntil: existing.ExpiresAt}, nil
	}

	// Stale lock or expired response: compare-and-swap on the previous token.
	res := r.db.WithContext(ctx).
		Model(&entity.IdempotencyRecord{}).
		Where(map[string]interface{}{"id": existing.ID, "lock_token": existing.LockToken}).
		Where("expires_at <= ?", now).
		Select("lock_token", "processed", "status_code", "response_headers", "response_body",
			"content_type", "request_fingerprint", "created_at", "expires_at", "processing_completed_at").
		Updates(&entity.IdempotencyRecord{
			LockToken: string(token),
			CreatedAt: now,
			ExpiresAt: now.Add(timeout),
		})
	if res.Error != nil {
		return domainRepo.LockResult{}, classify("take over lock", res.Error)
	}
	if res.RowsAffected == 1 {
		return domainRepo.LockResult{Acquired: true, Token: token}, nil
	}
	return domainRepo.LockResult{Acquired: false, HeldUntil: now.Add(timeout)}, nil
}

// Persist flips the caller's lock row to a processed response row
func (r *idempotencyRepository) Persist(ctx context.Context, id entity.CompositeIdentity, token domainRepo.LockToken, resp *entity.CachedResponse, ttl time.Duration) error {
	completedAt := r.now()
	cond := identityColumns(id)
	cond["lock_token"] = string(token)
	cond["processed"] = false

	res := r.db.WithContext(ctx).
		Model(&entity.IdempotencyRecord{}).
		Where(cond).
		Select("processed", "status_code", "response_headers", "response_body", "content_type",
			"request_fingerprint", "created_at", "expires_at", "processing_completed_at").
		Updates(&entity.IdempotencyRecord{
			Processed:             true,
			StatusCode:            resp.StatusCode,
			ResponseHeaders:       resp.Header,
			ResponseBody:          resp.Body,
			ContentType:           resp.ContentType,
			RequestFingerprint:    resp.Fingerprint,
			CreatedAt:             resp.CreatedAt,
			ExpiresAt:             resp.CreatedAt.Add(ttl),
			ProcessingCompletedAt: &completedAt,
		})
	if res.Error != nil {
		return classify("persist", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainRepo.ErrLockLost
	}
	return nil
}

// ReleaseLock deletes the caller's unprocessed row
func (r *idempotencyRepository) ReleaseLock(ctx context.Context, id entity.CompositeIdentity, token domainRepo.LockToken) error {
	cond := identityColumns(id)
	cond["lock_token"] = string(token)
	cond["processed"] = false

	res := r.db.WithContext(ctx).
		Where(cond).
		Delete(&entity.IdempotencyRecord{})
	if res.Error != nil {
		return classify("release", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainRepo.ErrLockLost
	}
	return nil
}

// DeleteExpired removes expired responses and stale locks with an index range
// scan on expires_at
func (r *idempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Delete(&entity.IdempotencyRecord{})
	if res.Error != nil {
		return 0, classify("delete expired", res.Error)
	}
	return res.RowsAffected, nil
}

// classify maps driver errors onto the domain sentinels
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return fmt.Errorf("%w: %s: %s (%s)", domainRepo.ErrConstraintViolation, op, pgErr.ConstraintName, pgErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domainRepo.ErrStoreUnavailable, op, err)
}

var _ domainRepo.ExpiredSweeper = (*idempotencyRepository)(nil)
