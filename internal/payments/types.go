package payments

import (
	"context"

	"github.com/gmottadev/pageturner-backend/pkg/enums"
)

// Session is the ephemeral snapshot of a checkout session, fetched fresh on
// every reconciliation pass. PaymentID is nil until the provider captures a
// payment intent for the session.
type Session struct {
	PaymentID     *string
	PaymentStatus enums.PaymentStatus
	Status        enums.SessionStatus
}

// RefundRecord is one refund attempt the provider knows about.
type RefundRecord struct {
	ID     string
	Status enums.ProviderRefundStatus
}

// GatewayClient exposes the subset of payment gateway operations the
// reconciliation engine consumes.
type GatewayClient interface {
	// GetSession retrieves the current session snapshot.
	GetSession(ctx context.Context, sessionID string) (Session, error)
	// ListRefunds returns the refund records for a payment, most recent first.
	ListRefunds(ctx context.Context, paymentID string) ([]RefundRecord, error)
}
