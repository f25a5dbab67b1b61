package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/response"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
	"golang.org/x/time/rate"
)

// ClientRateLimiter limits requests per client IP so a retry storm from one
// caller cannot starve the others
type ClientRateLimiter struct {
	limiters    map[string]*rateLimiterEntry
	mu          sync.Mutex
	rate        rate.Limit // requests per second
	burst       int        // maximum burst size
	cleanupTick time.Duration
	entryTTL    time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig holds configuration for the rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Rate of requests allowed per second
	BurstSize         int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale entries
	EntryTTL          time.Duration // How long to keep unused entries
}

// DefaultRateLimiterConfig returns sensible defaults
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
		EntryTTL:          10 * time.Minute,
	}
}

// NewClientRateLimiter creates a limiter and starts its cleanup loop. Call Stop
// to end the loop.
func NewClientRateLimiter(cfg RateLimiterConfig) *ClientRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}
	rl := &ClientRateLimiter{
		limiters:    make(map[string]*rateLimiterEntry),
		rate:        rate.Limit(cfg.RequestsPerSecond),
		burst:       cfg.BurstSize,
		cleanupTick: cfg.CleanupInterval,
		entryTTL:    cfg.EntryTTL,
		stop:        make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup loop
func (rl *ClientRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// getLimiter returns the rate limiter for a client
func (rl *ClientRateLimiter) getLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, exists := rl.limiters[client]; exists {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[client] = &rateLimiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

func (rl *ClientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes entries that haven't been used recently
func (rl *ClientRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.entryTTL)
	for client, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, client)
		}
	}
}

// Middleware returns a Gin middleware that applies per-client rate limiting
func (rl *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !limiter.Allow() {
			c.Header("X-RateLimit-Remaining", "0")
			response.Error(c, apperror.NewAppError(http.StatusTooManyRequests,
				"Rate limit exceeded. Please try again later.").WithRetryAfter(1))
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))

		c.Next()
	}
}

// Stats returns current statistics about the rate limiter
func (rl *ClientRateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"active_clients":      len(rl.limiters),
		"rate_per_second":     float64(rl.rate),
		"burst_size":          rl.burst,
		"cleanup_interval_ms": rl.cleanupTick.Milliseconds(),
		"entry_ttl_ms":        rl.entryTTL.Milliseconds(),
	}
}
