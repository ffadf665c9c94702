package reconcile

import (
	"context"

	"github.com/gmottadev/pageturner-backend/internal/payments"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	"github.com/gmottadev/pageturner-backend/pkg/logger"
)

// RefundOutcome is the resolver's verdict on a flagged refund obligation.
type RefundOutcome struct {
	NeedsRefund  bool
	RefundStatus string
}

// RefundResolver inspects the provider's refund records for a captured
// payment and decides whether the refund obligation is settled.
type RefundResolver struct {
	gateway payments.GatewayClient
	logg    *logger.Logger
}

func NewRefundResolver(gateway payments.GatewayClient, logg *logger.Logger) *RefundResolver {
	return &RefundResolver{gateway: gateway, logg: logg}
}

// Resolve fetches the refund records for paymentID and classifies the most
// recent one. Absence of any record keeps the obligation open under the
// sentinel status.
func (r *RefundResolver) Resolve(ctx context.Context, paymentID string) (RefundOutcome, error) {
	records, err := r.gateway.ListRefunds(ctx, paymentID)
	if err != nil {
		return RefundOutcome{}, err
	}

	if len(records) == 0 {
		return RefundOutcome{
			NeedsRefund:  true,
			RefundStatus: enums.RefundStatusNone,
		}, nil
	}

	latest := records[0]
	return RefundOutcome{
		NeedsRefund:  !refundSettled(latest.Status),
		RefundStatus: string(latest.Status),
	}, nil
}

// refundSettled classifies a provider refund status. The enum is closed;
// every provider value must map explicitly so a new provider status fails
// loudly in review instead of silently clearing an obligation.
func refundSettled(status enums.ProviderRefundStatus) bool {
	switch status {
	case enums.ProviderRefundPending, enums.ProviderRefundSucceeded:
		return true
	case enums.ProviderRefundRequiresAction, enums.ProviderRefundFailed, enums.ProviderRefundCanceled:
		return false
	default:
		// Unknown provider status keeps the obligation open.
		return false
	}
}
