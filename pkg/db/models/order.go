package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gmottadev/pageturner-backend/pkg/enums"
)

// Order is the persisted purchase aggregate. The checkout flow creates it in
// PREPARING with a Stripe session reference and a carrier ticket id; from then
// on the reconciliation engine is its only writer until it reaches a terminal
// state (DELIVERED, or CANCELED with a succeeded refund).
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber int64             `gorm:"column:order_number;not null"`
	BuyerEmail  string            `gorm:"column:buyer_email;not null"`
	TotalCents  int               `gorm:"column:total_cents;not null"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PREPARING'"`

	CancelReason  *enums.CancelReason `gorm:"column:cancel_reason;type:order_cancel_reason"`
	CancelMessage *string             `gorm:"column:cancel_message"`

	// Last-observed payment session snapshot.
	SessionID       string              `gorm:"column:session_id;not null"`
	StripeStatus    enums.SessionStatus `gorm:"column:stripe_status;not null;default:'unknown'"`
	StripePaymentID *string             `gorm:"column:stripe_payment_id"`

	// Last-observed shipping ticket snapshot.
	TicketID        string              `gorm:"column:ticket_id;not null"`
	TicketStatus    *enums.TicketStatus `gorm:"column:ticket_status"`
	TicketUpdatedAt *time.Time          `gorm:"column:ticket_updated_at"`
	Tracking        *string             `gorm:"column:tracking"`
	TicketPrice     *decimal.Decimal    `gorm:"column:ticket_price;type:numeric(10,2)"`

	NeedsRefund  bool    `gorm:"column:needs_refund;not null;default:false"`
	RefundStatus *string `gorm:"column:refund_status"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsTerminal reports whether the order is excluded from reconciliation.
func (o Order) IsTerminal() bool {
	if o.Status == enums.OrderStatusDelivered {
		return true
	}
	return o.Status == enums.OrderStatusCanceled &&
		o.RefundStatus != nil &&
		*o.RefundStatus == string(enums.ProviderRefundSucceeded)
}
