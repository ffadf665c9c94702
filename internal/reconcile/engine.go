package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gmottadev/pageturner-backend/internal/payments"
	"github.com/gmottadev/pageturner-backend/pkg/db/models"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	"github.com/gmottadev/pageturner-backend/pkg/shipping"
)

// Decision is the complete output of one decision-table evaluation: the new
// canonical order state plus the side effects the orchestrator must execute.
// The snapshot fields are refreshed on every branch, even when the lifecycle
// status does not change.
type Decision struct {
	Status        enums.OrderStatus
	CancelReason  *enums.CancelReason
	CancelMessage *string

	TicketStatus    enums.TicketStatus
	TicketUpdatedAt time.Time
	Tracking        *string
	TicketPrice     decimal.Decimal

	SessionStatus enums.SessionStatus
	PaymentID     *string

	// NeedsRefundCandidate gates the refund resolver; it never implies a
	// refund exists, only that the session shows a captured payment on a
	// canceled order.
	NeedsRefundCandidate bool

	// CancelTicket instructs the orchestrator to issue a best-effort carrier
	// cancel. Its failure must never block persisting the decision.
	CancelTicket bool
}

// ComputeNewStatus fuses the stored order with fresh ticket and session
// snapshots. Pure function; rules are evaluated in order, first match wins.
func ComputeNewStatus(order models.Order, ticket shipping.Ticket, session payments.Session) Decision {
	decision := Decision{
		Status:          order.Status,
		TicketStatus:    ticket.Status,
		TicketUpdatedAt: ticket.UpdatedAt,
		Tracking:        ticket.Tracking,
		TicketPrice:     ticket.Price,
		SessionStatus:   session.Status,
		PaymentID:       session.PaymentID,
	}

	switch {
	// A carrier-side cancellation arriving while the order is in transit is
	// read as delivery confirmation. Inherited carrier-sandbox behavior,
	// kept as-is until the carrier contract changes.
	case ticket.Status == enums.TicketStatusCanceled && order.Status == enums.OrderStatusInTransit:
		decision.Status = enums.OrderStatusDelivered

	case ticket.Status == enums.TicketStatusCanceled:
		decision.Status = enums.OrderStatusCanceled
		reason := enums.CancelReasonShippingService
		message := fmt.Sprintf("Ticket %s is canceled.", order.TicketID)
		decision.CancelReason = &reason
		decision.CancelMessage = &message
		decision.NeedsRefundCandidate = checkNeedsRefund(session)

	case session.Status == enums.SessionStatusExpired:
		decision.Status = enums.OrderStatusCanceled
		reason := enums.CancelReasonStripe
		// The message carries the ticket id, not the session id. Kept for
		// parity with what downstream support tooling greps for.
		message := fmt.Sprintf("Stripe session %s expired.", order.TicketID)
		decision.CancelReason = &reason
		decision.CancelMessage = &message
		decision.NeedsRefundCandidate = checkNeedsRefund(session)
		decision.CancelTicket = ticket.Status != enums.TicketStatusCanceled

	case ticket.Status == enums.TicketStatusReleased:
		decision.Status = enums.OrderStatusInTransit

	default:
		// No transition. Already-canceled orders keep their refund
		// obligation under review until it settles.
		if order.Status == enums.OrderStatusCanceled {
			decision.NeedsRefundCandidate = checkNeedsRefund(session)
		}
	}

	return decision
}

// checkNeedsRefund reports whether the session shows money that would have to
// be returned: a captured payment intent in paid state.
func checkNeedsRefund(session payments.Session) bool {
	return session.PaymentID != nil && *session.PaymentID != "" &&
		session.PaymentStatus == enums.PaymentStatusPaid
}
