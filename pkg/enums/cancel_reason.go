package enums

import "fmt"

// CancelReason records which external system caused a cancellation.
type CancelReason string

const (
	CancelReasonShippingService CancelReason = "SHIPPING_SERVICE"
	CancelReasonStripe          CancelReason = "STRIPE"
)

var validCancelReasons = []CancelReason{
	CancelReasonShippingService,
	CancelReasonStripe,
}

// String implements fmt.Stringer.
func (c CancelReason) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancelReason.
func (c CancelReason) IsValid() bool {
	for _, candidate := range validCancelReasons {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancelReason converts raw input into a CancelReason.
func ParseCancelReason(value string) (CancelReason, error) {
	for _, candidate := range validCancelReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancel reason %q", value)
}
