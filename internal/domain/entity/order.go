package entity

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
)

// Order represents a sales order taken through the demo API
type Order struct {
	ID           uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	InvoiceNo    string           `gorm:"size:100;unique;not null" json:"invoice_no"`
	CustomerName string           `gorm:"size:255;not null" json:"customer_name"`
	OrderStatus  enum.OrderStatus `gorm:"default:0" json:"order_status"`
	Items        []OrderItem      `gorm:"serializer:json;type:text" json:"items"`
	Total        int64            `gorm:"default:0" json:"-"` // Stored in cents, excluded from JSON
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TableName returns the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// MarshalJSON converts cents to decimal for API responses
func (o Order) MarshalJSON() ([]byte, error) {
	type Alias Order
	return json.Marshal(&struct {
		Alias
		Total float64 `json:"total"`
	}{
		Alias: Alias(o),
		Total: float64(o.Total) / 100,
	})
}

// OrderItem is a line on an order
type OrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	UnitCost int64  `json:"-"` // Stored in cents, excluded from JSON
}

// MarshalJSON converts cents to decimal for API responses
func (i OrderItem) MarshalJSON() ([]byte, error) {
	type Alias OrderItem
	return json.Marshal(&struct {
		Alias
		UnitCost float64 `json:"unit_cost"`
	}{
		Alias:    Alias(i),
		UnitCost: float64(i.UnitCost) / 100,
	})
}

// UnmarshalJSON reads the decimal unit_cost back into cents
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	type Alias OrderItem
	aux := &struct {
		*Alias
		UnitCost float64 `json:"unit_cost"`
	}{
		Alias: (*Alias)(i),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	i.UnitCost = int64(math.Round(aux.UnitCost * 100))
	return nil
}

// LineTotal returns quantity times unit cost in cents
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitCost
}

// Recalculate sets Total from the items
func (o *Order) Recalculate() {
	var total int64
	for _, item := range o.Items {
		total += item.LineTotal()
	}
	o.Total = total
}

// Clone returns a deep copy so callers cannot mutate stored orders
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}
