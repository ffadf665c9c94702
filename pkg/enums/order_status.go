package enums

import "fmt"

// OrderStatus tracks the canonical order lifecycle. Transitions are decided
// exclusively by the reconciliation engine's decision table.
type OrderStatus string

const (
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusInTransit OrderStatus = "IN_TRANSIT"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPreparing,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusCanceled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
