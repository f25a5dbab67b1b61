package service

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
)

// IdempotencyOptions is the policy applied by IdempotencyService
type IdempotencyOptions struct {
	// HeaderName carries the client key
	HeaderName string `validate:"required"`
	// TTL is how long a completed response stays eligible for replay
	TTL time.Duration `validate:"gt=0"`
	// LockTimeout bounds how long a processing lock is honoured, and how long
	// a duplicate waits in wait mode
	LockTimeout time.Duration `validate:"gt=0"`
	// PollInterval is the wait-mode lookup cadence
	PollInterval time.Duration `validate:"gt=0,ltefield=LockTimeout"`
	// ConflictHandling decides what a duplicate does while the original runs
	ConflictHandling enum.ConflictMode `validate:"oneof=reject wait"`
	// FailOpen lets requests through unprotected when the store errors;
	// otherwise they fail with 503 before the handler runs
	FailOpen bool
	// MaxKeyLength caps the raw key length
	MaxKeyLength int `validate:"min=1,max=4096"`
	// MaxBodySize caps the cached response body; larger responses are served
	// but not cached
	MaxBodySize int64 `validate:"gt=0"`
	// CacheErrorResponses caches non-2xx responses too
	CacheErrorResponses bool
	// Fingerprinting stores a request-body hash and answers 422 when a key is
	// reused with a different body
	Fingerprinting bool
	// RequireKey rejects protected requests without a key; when false they
	// pass through unprotected
	RequireKey bool
	// Methods are the HTTP methods the service protects
	Methods []string `validate:"min=1,dive,oneof=POST PUT PATCH DELETE"`
}

// DefaultIdempotencyOptions returns sensible defaults. Duplicates are rejected
// with 409 and store failures fail closed.
func DefaultIdempotencyOptions() IdempotencyOptions {
	return IdempotencyOptions{
		HeaderName:       "Idempotency-Key",
		TTL:              24 * time.Hour,
		LockTimeout:      30 * time.Second,
		PollInterval:     100 * time.Millisecond,
		ConflictHandling: enum.ConflictModeReject,
		FailOpen:         false,
		MaxKeyLength:     entity.DefaultMaxKeyLength,
		MaxBodySize:      1 << 20,
		RequireKey:       true,
		Methods:          []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}
}

var optionsValidator = validator.New()

// Validate checks every field against its constraints
func (o IdempotencyOptions) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("invalid idempotency options: %w", err)
	}
	return nil
}

// protects reports whether method is subject to idempotency handling
func (o IdempotencyOptions) protects(method string) bool {
	for _, m := range o.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// shouldCache reports whether a response with status is cached
func (o IdempotencyOptions) shouldCache(status int) bool {
	if o.CacheErrorResponses {
		return true
	}
	return status >= 200 && status < 300
}
