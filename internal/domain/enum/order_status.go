package enum

import (
	"encoding/json"
	"fmt"
)

// OrderStatus represents the status of an order
type OrderStatus int

const (
	OrderStatusPending  OrderStatus = 0
	OrderStatusComplete OrderStatus = 1
	OrderStatusCancel   OrderStatus = 2
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusPending:  "Pending",
	OrderStatusComplete: "Complete",
	OrderStatusCancel:   "Cancel",
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", int(s))
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

// ParseOrderStatus maps a status name back to its value
func ParseOrderStatus(name string) (OrderStatus, error) {
	for s, n := range orderStatusNames {
		if n == name {
			return s, nil
		}
	}
	return OrderStatusPending, fmt.Errorf("unknown order status %q", name)
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseOrderStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
