package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
)

// LoggerMiddleware logs one line per request, including how the idempotency
// layer answered it
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Generate request ID if not present
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Request.Header.Set("X-Request-ID", requestID)
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		idempotency := c.Writer.Header().Get(entity.HeaderIdempotencyStatus)
		if idempotency == "" {
			idempotency = "-"
		}

		log.Printf("[%s] %s | %d | %v | %s | %s | idempotency=%s",
			shortID(requestID),
			c.Request.Method,
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
			path,
			idempotency,
		)

		for _, e := range c.Errors {
			log.Printf("[%s] Error: %v", shortID(requestID), e.Err)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
