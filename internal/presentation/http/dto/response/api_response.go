package response

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta contains metadata about the response
type Meta struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// Problem is the machine-readable part of an error response
type Problem struct {
	Reason            string                `json:"reason"`
	RetryAfterSeconds int                   `json:"retry_after_seconds,omitempty"`
	Fields            []apperror.FieldError `json:"fields,omitempty"`
}

// NewMeta creates metadata for a response to a request carrying requestID
func NewMeta(requestID string) *Meta {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return &Meta{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
}

// newMeta creates metadata for the response
func newMeta(c *gin.Context) *Meta {
	return NewMeta(c.GetHeader("X-Request-ID"))
}

// NewErrorBody builds the envelope for appErr. Transports other than gin use
// it directly.
func NewErrorBody(appErr *apperror.AppError, meta *Meta) APIResponse {
	return APIResponse{
		Success: false,
		Message: appErr.Message,
		Errors: Problem{
			Reason:            appErr.Reason,
			RetryAfterSeconds: appErr.RetryAfter,
			Fields:            appErr.Errors,
		},
		Meta: meta,
	}
}

// RetryAfter formats a Retry-After header value, empty when not applicable
func RetryAfter(appErr *apperror.AppError) string {
	if appErr.RetryAfter <= 0 {
		return ""
	}
	return strconv.Itoa(appErr.RetryAfter)
}

// Success sends a success response
func Success(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    newMeta(c),
	})
}

// Error sends an error response
func Error(c *gin.Context, err error) {
	appErr := apperror.GetAppError(err)
	if v := RetryAfter(appErr); v != "" {
		c.Header("Retry-After", v)
	}
	c.JSON(appErr.Code, NewErrorBody(appErr, newMeta(c)))
}

// ErrorWithCode sends an error response with a specific status code
func ErrorWithCode(c *gin.Context, statusCode int, message string) {
	Error(c, apperror.NewAppError(statusCode, message))
}

// ValidationError sends a validation error response
func ValidationError(c *gin.Context, errors []apperror.FieldError) {
	Error(c, apperror.NewValidationError(errors))
}

// Created sends a 201 Created response
func Created(c *gin.Context, message string, data interface{}) {
	Success(c, 201, message, data)
}

// OK sends a 200 OK response
func OK(c *gin.Context, message string, data interface{}) {
	Success(c, 200, message, data)
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, 404, message)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, 400, message)
}
