package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/config"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/handler"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/middleware"
)

// Handlers holds all the HTTP handlers used for route registration.
type Handlers struct {
	Order     *handler.OrderHandler
	Dashboard *handler.DashboardHandler
}

// Deps holds shared dependencies needed by the routes.
type Deps struct {
	Cfg         *config.Config
	Idempotency *service.IdempotencyService
	RateLimiter *middleware.ClientRateLimiter
}

// Setup creates the Gin router and registers all routes.
func Setup(h *Handlers, deps *Deps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(&deps.Cfg.CORS, deps.Idempotency.Options().HeaderName))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": deps.Cfg.App.Name,
			"store":   deps.Cfg.Idempotency.Store,
		})
	})

	v1 := router.Group("/api/v1")
	if deps.RateLimiter != nil {
		v1.Use(deps.RateLimiter.Middleware())
	}
	{
		v1.GET("/stats", h.Dashboard.GetStats)
		registerOrderRoutes(v1, h, deps)
	}

	return router
}

func registerOrderRoutes(v1 *gin.RouterGroup, h *Handlers, deps *Deps) {
	orders := v1.Group("/orders")
	orders.Use(middleware.Idempotency(deps.Idempotency))
	{
		orders.POST("", h.Order.Create)
		orders.GET("/:id", h.Order.Get)
		orders.PUT("/:id", h.Order.Update)
	}
}
