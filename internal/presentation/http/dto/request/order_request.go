package request

// OrderItemRequest represents a line in an order request
type OrderItemRequest struct {
	SKU      string  `json:"sku" binding:"required,max=64"`
	Quantity int     `json:"quantity" binding:"required,min=1"`
	UnitCost float64 `json:"unit_cost" binding:"min=0"`
}

// CreateOrderRequest represents an order creation request
type CreateOrderRequest struct {
	CustomerName string             `json:"customer_name" binding:"required,min=2,max=255"`
	Items        []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// UpdateOrderRequest represents an order update request
type UpdateOrderRequest struct {
	CustomerName *string            `json:"customer_name" binding:"omitempty,min=2,max=255"`
	OrderStatus  *string            `json:"order_status" binding:"omitempty,oneof=Pending Complete Cancel"`
	Items        []OrderItemRequest `json:"items" binding:"omitempty,min=1,dive"`
}
