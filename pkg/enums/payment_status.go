package enums

import "fmt"

// PaymentStatus mirrors the payment state Stripe reports on a checkout session.
type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPaid,
	PaymentStatusUnpaid,
	PaymentStatusNoPaymentRequired,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
