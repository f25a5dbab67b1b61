package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/response"
)

// StatsSource is anything that reports runtime counters, such as the memory
// key store or the rate limiter
type StatsSource interface {
	Stats() map[string]interface{}
}

// DashboardHandler exposes runtime statistics for the gateway
type DashboardHandler struct {
	orderService *service.OrderService
	sources      map[string]StatsSource
}

// NewDashboardHandler creates a new dashboard handler. Nil sources are skipped.
func NewDashboardHandler(orderService *service.OrderService, sources map[string]StatsSource) *DashboardHandler {
	live := make(map[string]StatsSource, len(sources))
	for name, src := range sources {
		if src != nil {
			live[name] = src
		}
	}
	return &DashboardHandler{orderService: orderService, sources: live}
}

// GetStats handles getting gateway statistics
func (h *DashboardHandler) GetStats(c *gin.Context) {
	orders, err := h.orderService.CountOrders(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	stats := gin.H{"orders": orders}
	for name, src := range h.sources {
		stats[name] = src.Stats()
	}

	response.OK(c, "Stats retrieved successfully", stats)
}
