package enums

import "fmt"

// ProviderRefundStatus is the closed set of refund states Stripe reports.
// Keeping it a closed enum makes a new provider status a compile-visible
// change instead of a silent map miss.
type ProviderRefundStatus string

const (
	ProviderRefundPending        ProviderRefundStatus = "pending"
	ProviderRefundSucceeded      ProviderRefundStatus = "succeeded"
	ProviderRefundRequiresAction ProviderRefundStatus = "requires_action"
	ProviderRefundFailed         ProviderRefundStatus = "failed"
	ProviderRefundCanceled       ProviderRefundStatus = "canceled"
)

// RefundStatusNone is the sentinel persisted when a refund obligation is
// recorded but the provider has not created any refund record yet.
const RefundStatusNone = "stripe_has_none"

var validProviderRefundStatuses = []ProviderRefundStatus{
	ProviderRefundPending,
	ProviderRefundSucceeded,
	ProviderRefundRequiresAction,
	ProviderRefundFailed,
	ProviderRefundCanceled,
}

// String implements fmt.Stringer.
func (r ProviderRefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ProviderRefundStatus.
func (r ProviderRefundStatus) IsValid() bool {
	for _, candidate := range validProviderRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseProviderRefundStatus converts raw input into a ProviderRefundStatus.
func ParseProviderRefundStatus(value string) (ProviderRefundStatus, error) {
	for _, candidate := range validProviderRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider refund status %q", value)
}
