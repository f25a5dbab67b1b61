package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
	"github.com/sangkips/idempotency-gateway/pkg/utils"
)

// OrderService handles order-related operations for the demo API
type OrderService struct {
	orderRepo repository.OrderRepository
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(orderRepo repository.OrderRepository) *OrderService {
	return &OrderService{orderRepo: orderRepo, now: time.Now}
}

// OrderItemInput represents an item in an order
type OrderItemInput struct {
	SKU      string
	Quantity int
	UnitCost float64
}

// CreateOrderInput represents the create order input
type CreateOrderInput struct {
	CustomerName string
	Items        []OrderItemInput
}

// UpdateOrderInput represents the update order input. Nil fields are left unchanged.
type UpdateOrderInput struct {
	OrderID      uuid.UUID
	CustomerName *string
	OrderStatus  *enum.OrderStatus
	Items        []OrderItemInput
}

// CreateOrder creates a new order. Every call allocates a new invoice number,
// so a duplicated request shows up as a second invoice.
func (s *OrderService) CreateOrder(ctx context.Context, input *CreateOrderInput) (*entity.Order, error) {
	if len(input.Items) == 0 {
		return nil, apperror.NewBadRequestError("Order must contain at least one item")
	}

	now := s.now().UTC()
	order := &entity.Order{
		ID:           uuid.New(),
		InvoiceNo:    utils.GenerateInvoiceNo("INV"),
		CustomerName: input.CustomerName,
		OrderStatus:  enum.OrderStatusPending,
		Items:        toOrderItems(input.Items),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Recalculate()

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.NewNotFoundError("Order")
	}
	return order, nil
}

// UpdateOrder applies a partial update
func (s *OrderService) UpdateOrder(ctx context.Context, input *UpdateOrderInput) (*entity.Order, error) {
	order, err := s.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	if input.CustomerName != nil {
		order.CustomerName = *input.CustomerName
	}
	if input.OrderStatus != nil {
		order.OrderStatus = *input.OrderStatus
	}
	if len(input.Items) > 0 {
		order.Items = toOrderItems(input.Items)
		order.Recalculate()
	}
	order.UpdatedAt = s.now().UTC()

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CountOrders returns the number of stored orders
func (s *OrderService) CountOrders(ctx context.Context) (int64, error) {
	return s.orderRepo.Count(ctx)
}

func toOrderItems(items []OrderItemInput) []entity.OrderItem {
	out := make([]entity.OrderItem, len(items))
	for i, item := range items {
		out[i] = entity.OrderItem{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			UnitCost: int64(math.Round(item.UnitCost * 100)),
		}
	}
	return out
}
