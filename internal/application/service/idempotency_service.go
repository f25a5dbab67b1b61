package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
)

// Request is the part of an inbound request the service needs
type Request struct {
	Method string
	// RouteTemplate is the matched route pattern, e.g. /orders/:id
	RouteTemplate string
	Header        http.Header
	Body          []byte
}

// Response is a complete response produced by a handler or a replay
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Handler runs the protected business logic
type Handler func(ctx context.Context) (*Response, error)

// ErrNoResponse is returned when a handler returns neither a response nor an error
var ErrNoResponse = errors.New("handler returned no response")

// IdempotencyService coordinates exactly-once execution of retried writes
type IdempotencyService struct {
	store  repository.KeyStore
	opts   IdempotencyOptions
	logger *log.Logger
	now    func() time.Time
}

// IdempotencyServiceOption configures an IdempotencyService
type IdempotencyServiceOption func(*IdempotencyService)

// WithLogger sets the logger
func WithLogger(logger *log.Logger) IdempotencyServiceOption {
	return func(s *IdempotencyService) {
		s.logger = logger
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) IdempotencyServiceOption {
	return func(s *IdempotencyService) {
		s.now = now
	}
}

// NewIdempotencyService validates opts and creates the service
func NewIdempotencyService(store repository.KeyStore, opts IdempotencyOptions, options ...IdempotencyServiceOption) (*IdempotencyService, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &IdempotencyService{
		store:  store,
		opts:   opts,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Options returns the policy in effect
func (s *IdempotencyService) Options() IdempotencyOptions {
	return s.opts
}

// Protects reports whether requests with method go through Execute's protocol.
// Transports use it to skip buffering request bodies they do not need.
func (s *IdempotencyService) Protects(method string) bool {
	return s.opts.protects(method)
}

// Execute runs next at most once per composite identity.
//
// Rejections come back as *apperror.AppError: 400 for a missing or invalid key,
// 409 for a duplicate in flight, 422 for a fingerprint mismatch, 503 when the
// store fails closed, 499/504 when ctx ends while waiting. Handler errors are
// returned unchanged.
func (s *IdempotencyService) Execute(ctx context.Context, req Request, next Handler) (*Response, error) {
	if !s.opts.protects(req.Method) {
		return next(ctx)
	}

	raw := req.Header.Get(s.opts.HeaderName)
	if raw == "" {
		if !s.opts.RequireKey {
			return next(ctx)
		}
		return nil, apperror.NewBadRequestError(s.opts.HeaderName + " header is required for this request").
			WithReason(apperror.ReasonMissingKey)
	}

	key, ok := entity.TryCreateIdempotencyKey(raw, s.opts.MaxKeyLength)
	if !ok {
		msg := fmt.Sprintf("%s must be 1-%d characters of letters, digits, '-' or '_'", s.opts.HeaderName, s.opts.MaxKeyLength)
		return nil, apperror.NewBadRequestError(msg).WithReason(apperror.ReasonInvalidKey)
	}

	id := entity.NewCompositeIdentity(req.Method, req.RouteTemplate, key)
	var fingerprint string
	if s.opts.Fingerprinting {
		fingerprint = Fingerprint(req.Body)
	}

	cached, found, err := s.store.Lookup(ctx, id)
	if err != nil {
		return s.storeFailure(ctx, id, "lookup", err, next)
	}
	if found {
		return s.replay(id, cached, fingerprint)
	}

	lock, err := s.store.TryAcquireLock(ctx, id, s.opts.LockTimeout)
	if err != nil {
		return s.storeFailure(ctx, id, "acquire lock", err, next)
	}
	if lock.Acquired {
		return s.execute(ctx, id, lock.Token, fingerprint, next)
	}

	// Denied with no holder deadline means a response landed after our lookup.
	if lock.HeldUntil.IsZero() {
		cached, found, err := s.store.Lookup(ctx, id)
		if err != nil {
			return s.storeFailure(ctx, id, "lookup", err, next)
		}
		if found {
			return s.replay(id, cached, fingerprint)
		}
	}

	if s.opts.ConflictHandling == enum.ConflictModeWait {
		return s.wait(ctx, id, fingerprint, next)
	}
	s.logger.Printf("lvl=info msg=\"duplicate request in flight, rejecting\" identity=%q", id)
	return nil, s.conflict(lock.HeldUntil)
}

// wait polls the store until the original completes, the lock frees up, or the
// lock timeout elapses
func (s *IdempotencyService) wait(ctx context.Context, id entity.CompositeIdentity, fingerprint string, next Handler) (*Response, error) {
	s.logger.Printf("lvl=info msg=\"duplicate request in flight, waiting\" identity=%q", id)
	deadline := s.now().Add(s.opts.LockTimeout)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, cancelled(ctx.Err())
		case <-ticker.C:
		}

		cached, found, err := s.store.Lookup(ctx, id)
		if err != nil {
			return s.storeFailure(ctx, id, "lookup", err, next)
		}
		if found {
			return s.replay(id, cached, fingerprint)
		}

		lock, err := s.store.TryAcquireLock(ctx, id, s.opts.LockTimeout)
		if err != nil {
			return s.storeFailure(ctx, id, "acquire lock", err, next)
		}
		if lock.Acquired {
			return s.execute(ctx, id, lock.Token, fingerprint, next)
		}

		if !s.now().Before(deadline) {
			s.logger.Printf("lvl=warn msg=\"gave up waiting for in-flight request\" identity=%q", id)
			return nil, s.conflict(lock.HeldUntil)
		}
	}
}

// execute runs next while holding the lock. The lock is settled exactly once:
// by Persist on a cacheable outcome, otherwise by the deferred release, which
// also covers handler panics and cancellation.
func (s *IdempotencyService) execute(ctx context.Context, id entity.CompositeIdentity, token repository.LockToken, fingerprint string, next Handler) (*Response, error) {
	settled := false
	defer func() {
		if settled {
			return
		}
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), id, token); err != nil {
			s.logger.Printf("lvl=warn msg=\"release lock failed\" identity=%q err=%v", id, err)
		}
	}()

	resp, err := next(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNoResponse
	}
	if !s.opts.shouldCache(resp.StatusCode) {
		return resp, nil
	}
	if int64(len(resp.Body)) > s.opts.MaxBodySize {
		s.logger.Printf("lvl=warn msg=\"response body too large to cache\" identity=%q size=%d max=%d",
			id, len(resp.Body), s.opts.MaxBodySize)
		markCreated(ensureHeader(resp))
		return resp, nil
	}

	cached, err := entity.NewCachedResponse(resp.StatusCode, resp.Header, resp.Body, fingerprint, s.now(), s.opts.TTL)
	if err != nil {
		s.logger.Printf("lvl=warn msg=\"response not cacheable\" identity=%q err=%v", id, err)
		markCreated(ensureHeader(resp))
		return resp, nil
	}

	// The handler already ran, so the outcome is stored even if the caller left.
	err = s.store.Persist(context.WithoutCancel(ctx), id, token, cached, s.opts.TTL)
	switch {
	case err == nil:
		settled = true
		annotate(ensureHeader(resp), enum.IdempotencyStatusCreated, cached.ExpiresAt)
	case errors.Is(err, repository.ErrLockLost):
		settled = true
		s.logger.Printf("lvl=warn msg=\"lock expired before persist, response not cached\" identity=%q", id)
	default:
		s.logger.Printf("lvl=error msg=\"persist failed, response not cached\" identity=%q err=%v", id, err)
	}
	if err != nil {
		markCreated(ensureHeader(resp))
	}
	return resp, nil
}

// replay returns a copy of cached annotated as a replay
func (s *IdempotencyService) replay(id entity.CompositeIdentity, cached *entity.CachedResponse, fingerprint string) (*Response, error) {
	if s.opts.Fingerprinting && cached.Fingerprint != "" && fingerprint != cached.Fingerprint {
		s.logger.Printf("lvl=warn msg=\"idempotency key reused with a different payload\" identity=%q", id)
		return nil, apperror.NewAppError(http.StatusUnprocessableEntity,
			"Idempotency key was already used with a different request body").
			WithReason(apperror.ReasonFingerprintMismatch)
	}

	header := cached.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	annotate(header, enum.IdempotencyStatusCached, cached.ExpiresAt)
	header.Set(entity.HeaderReplayed, "true")

	return &Response{
		StatusCode: cached.StatusCode,
		Header:     header,
		Body:       append([]byte(nil), cached.Body...),
	}, nil
}

// storeFailure applies the fail-open / fail-closed policy
func (s *IdempotencyService) storeFailure(ctx context.Context, id entity.CompositeIdentity, op string, err error, next Handler) (*Response, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, cancelled(err)
	}
	if s.opts.FailOpen {
		s.logger.Printf("lvl=warn msg=\"store unavailable, failing open\" op=%q identity=%q err=%v", op, id, err)
		return next(ctx)
	}
	s.logger.Printf("lvl=error msg=\"store unavailable, failing closed\" op=%q identity=%q err=%v", op, id, err)
	return nil, apperror.NewAppError(http.StatusServiceUnavailable, "Idempotency store is unavailable, retry later").
		WithReason(apperror.ReasonStoreUnavailable).
		WithRetryAfter(1).
		Wrap(err)
}

func (s *IdempotencyService) conflict(heldUntil time.Time) *apperror.AppError {
	retryAfter := 1
	if !heldUntil.IsZero() {
		if secs := int(math.Ceil(heldUntil.Sub(s.now()).Seconds())); secs > retryAfter {
			retryAfter = secs
		}
	}
	return apperror.NewConflictError("A request with this idempotency key is already being processed").
		WithReason(apperror.ReasonConflict).
		WithRetryAfter(retryAfter)
}

func cancelled(err error) *apperror.AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewAppError(http.StatusGatewayTimeout, "Request timed out").
			WithReason(apperror.ReasonTimeout).
			Wrap(err)
	}
	return apperror.NewAppError(apperror.StatusClientClosedRequest, "Request cancelled").
		WithReason(apperror.ReasonCancelled).
		Wrap(err)
}

func ensureHeader(resp *Response) http.Header {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	return resp.Header
}

// markCreated flags a fresh execution that was not cached, so no expiry is sent
func markCreated(h http.Header) {
	h.Set(entity.HeaderIdempotencyStatus, enum.IdempotencyStatusCreated.String())
	h.Del(entity.HeaderIdempotencyExpires)
}

func annotate(h http.Header, status enum.IdempotencyStatus, expiresAt time.Time) {
	h.Set(entity.HeaderIdempotencyStatus, status.String())
	h.Set(entity.HeaderIdempotencyExpires, expiresAt.UTC().Format(time.RFC3339))
}
