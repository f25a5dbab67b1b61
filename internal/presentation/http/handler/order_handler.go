package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/request"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/dto/response"
)

// OrderHandler handles order-related HTTP requests
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// Create handles creating an order
func (h *OrderHandler) Create(c *gin.Context) {
	var req request.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &service.CreateOrderInput{
		CustomerName: req.CustomerName,
		Items:        toItemInputs(req.Items),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Location", "/api/v1/orders/"+order.ID.String())
	response.Created(c, "Order created successfully", order)
}

// Get handles getting a single order
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Order retrieved successfully", order)
}

// Update handles updating an order
func (h *OrderHandler) Update(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req request.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	input := &service.UpdateOrderInput{
		OrderID:      id,
		CustomerName: req.CustomerName,
		Items:        toItemInputs(req.Items),
	}
	if req.OrderStatus != nil {
		status, err := enum.ParseOrderStatus(*req.OrderStatus)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		input.OrderStatus = &status
	}

	order, err := h.orderService.UpdateOrder(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Order updated successfully", order)
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}

func toItemInputs(items []request.OrderItemRequest) []service.OrderItemInput {
	if len(items) == 0 {
		return nil
	}
	out := make([]service.OrderItemInput, len(items))
	for i, item := range items {
		out[i] = service.OrderItemInput{SKU: item.SKU, Quantity: item.Quantity, UnitCost: item.UnitCost}
	}
	return out
}
