package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAppError(t *testing.T) {
	conflict := NewConflictError("busy").WithRetryAfter(3)
	wrapped := fmt.Errorf("handler: %w", conflict)

	got := GetAppError(wrapped)
	assert.Same(t, conflict, got)
	assert.Equal(t, http.StatusConflict, got.Code)
	assert.Equal(t, ReasonConflict, got.Reason)
	assert.Equal(t, 3, got.RetryAfter)

	plain := GetAppError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, plain.Code)
	assert.Equal(t, "Internal server error", plain.Message)
	assert.EqualError(t, plain.Err, "boom")
}

func TestAppError_Unwrap(t *testing.T) {
	err := NewAppError(StatusClientClosedRequest, "Request cancelled").
		WithReason(ReasonCancelled).
		Wrap(context.Canceled)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Request cancelled: context canceled", err.Error())
	assert.True(t, IsAppError(fmt.Errorf("x: %w", err)))
	assert.False(t, IsAppError(context.Canceled))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Order")
	assert.Equal(t, "Order not found", err.Message)
	assert.Equal(t, ReasonNotFound, err.Reason)
}

func TestAppError_BuildersLeaveReceiverUntouched(t *testing.T) {
	base := NewBadRequestError("Bad request")

	tagged := base.WithReason(ReasonInvalidKey).WithRetryAfter(5).Wrap(context.Canceled)

	assert.NotSame(t, base, tagged)
	assert.Equal(t, ReasonBadRequest, base.Reason)
	assert.Zero(t, base.RetryAfter)
	assert.NoError(t, base.Err)
	assert.Equal(t, ReasonInvalidKey, tagged.Reason)
	assert.Equal(t, 5, tagged.RetryAfter)
	assert.ErrorIs(t, tagged, context.Canceled)
}
