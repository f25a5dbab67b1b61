package apperror

import (
	"errors"
	"net/http"
)

// Machine-readable reasons carried in error payloads
const (
	ReasonMissingKey          = "idempotency_key_missing"
	ReasonInvalidKey          = "idempotency_key_invalid"
	ReasonConflict            = "request_in_progress"
	ReasonFingerprintMismatch = "idempotency_key_reused"
	ReasonStoreUnavailable    = "idempotency_store_unavailable"
	ReasonCancelled           = "request_cancelled"
	ReasonTimeout             = "request_timeout"
	ReasonNotFound            = "not_found"
	ReasonBadRequest          = "bad_request"
	ReasonValidation          = "validation_failed"
	ReasonTooManyRequests     = "rate_limited"
	ReasonInternal            = "internal_error"
)

// StatusClientClosedRequest is the non-standard status used when the caller
// went away while we were waiting on its behalf
const StatusClientClosedRequest = 499

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int          `json:"code"`
	Reason  string       `json:"reason"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	// RetryAfter is in whole seconds, zero when not applicable
	RetryAfter int   `json:"-"`
	Err        error `json:"-"`
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Reason:  reasonFor(code),
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(fieldErrors []FieldError) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Reason:  ReasonValidation,
		Message: "Validation failed",
		Errors:  fieldErrors,
	}
}

// NewNotFoundError creates a not found error with a custom message
func NewNotFoundError(resource string) *AppError {
	return NewAppError(http.StatusNotFound, resource+" not found")
}

// NewConflictError creates a conflict error with a custom message
func NewConflictError(message string) *AppError {
	return NewAppError(http.StatusConflict, message)
}

// NewBadRequestError creates a bad request error with a custom message
func NewBadRequestError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message)
}

// The builders below return a modified copy and leave e untouched.

// WithReason overrides the machine-readable reason
func (e *AppError) WithReason(reason string) *AppError {
	c := *e
	c.Reason = reason
	return &c
}

// WithRetryAfter attaches a retry hint in seconds
func (e *AppError) WithRetryAfter(seconds int) *AppError {
	c := *e
	c.RetryAfter = seconds
	return &c
}

// Wrap records the underlying cause
func (e *AppError) Wrap(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError converts an error to AppError if possible
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Code:    http.StatusInternalServerError,
		Reason:  ReasonInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

func reasonFor(code int) string {
	switch code {
	case http.StatusBadRequest:
		return ReasonBadRequest
	case http.StatusNotFound:
		return ReasonNotFound
	case http.StatusConflict:
		return ReasonConflict
	case http.StatusUnprocessableEntity:
		return ReasonValidation
	case http.StatusTooManyRequests:
		return ReasonTooManyRequests
	case http.StatusServiceUnavailable:
		return ReasonStoreUnavailable
	default:
		return ReasonInternal
	}
}
