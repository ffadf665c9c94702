package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gmottadev/pageturner-backend/pkg/db"
	"github.com/gmottadev/pageturner-backend/pkg/db/models"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
)

// StatusSnapshot is the complete new state one reconciliation pipeline
// computed for an order. It is applied as a single-row update; a pipeline
// either persists the whole snapshot or nothing.
type StatusSnapshot struct {
	Status        enums.OrderStatus
	CancelReason  *enums.CancelReason
	CancelMessage *string

	StripeStatus    enums.SessionStatus
	StripePaymentID *string

	TicketStatus    enums.TicketStatus
	TicketUpdatedAt time.Time
	Tracking        *string
	TicketPrice     decimal.Decimal

	NeedsRefund bool
	// RefundStatus nil means the refund state was not re-evaluated this pass
	// and the stored value must be left untouched.
	RefundStatus *string
}

// Repository is the persistence boundary for the reconciler.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindReconcilable(ctx context.Context) ([]models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ApplySnapshot(ctx context.Context, orderID uuid.UUID, snapshot StatusSnapshot) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindReconcilable returns every order that has not reached a terminal state:
// DELIVERED, or CANCELED with a succeeded refund.
func (r *repository) FindReconcilable(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status <> ?", enums.OrderStatusDelivered).
		// COALESCE keeps canceled orders with no refund evaluation yet in scope;
		// a NULL refund_status must not read as settled.
		Where("NOT (status = ? AND COALESCE(refund_status, '') = ?)",
			enums.OrderStatusCanceled, string(enums.ProviderRefundSucceeded)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list reconcilable orders")
	}
	return rows, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMissingInput, err, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "find order")
	}
	return &order, nil
}

// ApplySnapshot writes the computed snapshot atomically. Cancel metadata and
// refund status are only written when the pass produced them, matching the
// invariant that those fields are never partially reset.
func (r *repository) ApplySnapshot(ctx context.Context, orderID uuid.UUID, snapshot StatusSnapshot) error {
	updates := map[string]any{
		"status":            snapshot.Status,
		"stripe_status":     snapshot.StripeStatus,
		"stripe_payment_id": snapshot.StripePaymentID,
		"ticket_status":     snapshot.TicketStatus,
		"ticket_updated_at": snapshot.TicketUpdatedAt,
		"tracking":          snapshot.Tracking,
		"ticket_price":      snapshot.TicketPrice,
		"needs_refund":      snapshot.NeedsRefund,
	}
	if snapshot.CancelReason != nil {
		updates["cancel_reason"] = *snapshot.CancelReason
	}
	if snapshot.CancelMessage != nil {
		updates["cancel_message"] = *snapshot.CancelMessage
	}
	if snapshot.RefundStatus != nil {
		updates["refund_status"] = *snapshot.RefundStatus
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, result.Error, "apply order snapshot")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStorage, "order row not found for snapshot update")
	}
	return nil
}
