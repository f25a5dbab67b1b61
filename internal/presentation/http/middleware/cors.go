package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sangkips/idempotency-gateway/internal/config"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
)

// CORSMiddleware creates a CORS middleware that lets browsers send the
// idempotency key and read the idempotency response headers
func CORSMiddleware(cfg *config.CORSConfig, keyHeader string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: cfg.AllowedMethods,
		AllowHeaders: cfg.AllowedHeaders,
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
			"Retry-After",
			entity.HeaderIdempotencyStatus,
			entity.HeaderIdempotencyExpires,
			entity.HeaderReplayed,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// If no origins are configured, allow common development origins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
			"http://127.0.0.1:3000",
		}
	}

	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}

	if len(corsConfig.AllowHeaders) == 0 {
		corsConfig.AllowHeaders = []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			"Origin",
		}
	}
	corsConfig.AllowHeaders = appendMissingHeader(corsConfig.AllowHeaders, keyHeader)

	return cors.New(corsConfig)
}

func appendMissingHeader(headers []string, name string) []string {
	canonical := http.CanonicalHeaderKey(name)
	for _, h := range headers {
		if http.CanonicalHeaderKey(h) == canonical {
			return headers
		}
	}
	return append(headers, name)
}
