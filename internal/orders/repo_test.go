package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gmottadev/pageturner-backend/pkg/db/models"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
)

func setupOrdersDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = gdb.Exec(`
		CREATE TABLE orders (
			id TEXT PRIMARY KEY,
			order_number INTEGER NOT NULL,
			buyer_email TEXT NOT NULL,
			total_cents INTEGER NOT NULL,
			status TEXT NOT NULL,
			cancel_reason TEXT,
			cancel_message TEXT,
			session_id TEXT NOT NULL,
			stripe_status TEXT NOT NULL DEFAULT 'unknown',
			stripe_payment_id TEXT,
			ticket_id TEXT NOT NULL,
			ticket_status TEXT,
			ticket_updated_at DATETIME,
			tracking TEXT,
			ticket_price NUMERIC,
			needs_refund BOOLEAN NOT NULL DEFAULT FALSE,
			refund_status TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error
	require.NoError(t, err)

	return gdb
}

func seedOrder(t *testing.T, gdb *gorm.DB, mutate func(*models.Order)) models.Order {
	t.Helper()

	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: 1001,
		BuyerEmail:  "reader@example.com",
		TotalCents:  4599,
		Status:      enums.OrderStatusPreparing,
		SessionID:   "cs_test_" + uuid.NewString()[:8],
		TicketID:    "tk_" + uuid.NewString()[:8],
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, gdb.Create(&order).Error)
	return order
}

func TestFindReconcilable_SkipsTerminalOrders(t *testing.T) {
	gdb := setupOrdersDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	preparing := seedOrder(t, gdb, nil)
	inTransit := seedOrder(t, gdb, func(o *models.Order) {
		o.OrderNumber = 1002
		o.Status = enums.OrderStatusInTransit
	})
	// Canceled but refund not settled yet, still reconcilable.
	canceledPending := seedOrder(t, gdb, func(o *models.Order) {
		o.OrderNumber = 1003
		o.Status = enums.OrderStatusCanceled
		pending := string(enums.ProviderRefundPending)
		o.RefundStatus = &pending
	})
	// Canceled before any refund evaluation ran; NULL refund_status must not
	// read as settled.
	canceledUnevaluated := seedOrder(t, gdb, func(o *models.Order) {
		o.OrderNumber = 1004
		o.Status = enums.OrderStatusCanceled
	})
	seedOrder(t, gdb, func(o *models.Order) {
		o.OrderNumber = 1006
		o.Status = enums.OrderStatusDelivered
	})
	seedOrder(t, gdb, func(o *models.Order) {
		o.OrderNumber = 1005
		o.Status = enums.OrderStatusCanceled
		succeeded := string(enums.ProviderRefundSucceeded)
		o.RefundStatus = &succeeded
	})

	rows, err := repo.FindReconcilable(ctx)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.Len(t, rows, 4)
	assert.Contains(t, ids, preparing.ID)
	assert.Contains(t, ids, inTransit.ID)
	assert.Contains(t, ids, canceledPending.ID)
	assert.Contains(t, ids, canceledUnevaluated.ID)
}

func TestApplySnapshot_WritesFullSnapshot(t *testing.T) {
	gdb := setupOrdersDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	order := seedOrder(t, gdb, nil)

	reason := enums.CancelReasonShippingService
	message := "Ticket tk_123 is canceled."
	paymentID := "pi_123"
	tracking := "BR123456789"
	refund := string(enums.ProviderRefundPending)
	updatedAt := time.Now().UTC().Truncate(time.Second)

	snapshot := StatusSnapshot{
		Status:          enums.OrderStatusCanceled,
		CancelReason:    &reason,
		CancelMessage:   &message,
		StripeStatus:    enums.SessionStatusComplete,
		StripePaymentID: &paymentID,
		TicketStatus:    enums.TicketStatusCanceled,
		TicketUpdatedAt: updatedAt,
		Tracking:        &tracking,
		TicketPrice:     decimal.NewFromFloat(19.90),
		NeedsRefund:     true,
		RefundStatus:    &refund,
	}
	require.NoError(t, repo.ApplySnapshot(ctx, order.ID, snapshot))

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, enums.CancelReasonShippingService, *got.CancelReason)
	require.NotNil(t, got.CancelMessage)
	assert.Equal(t, message, *got.CancelMessage)
	assert.Equal(t, enums.SessionStatusComplete, got.StripeStatus)
	require.NotNil(t, got.StripePaymentID)
	assert.Equal(t, paymentID, *got.StripePaymentID)
	require.NotNil(t, got.TicketStatus)
	assert.Equal(t, enums.TicketStatusCanceled, *got.TicketStatus)
	require.NotNil(t, got.Tracking)
	assert.Equal(t, tracking, *got.Tracking)
	assert.True(t, got.NeedsRefund)
	require.NotNil(t, got.RefundStatus)
	assert.Equal(t, refund, *got.RefundStatus)
}

func TestApplySnapshot_NilRefundStatusLeavesStoredValue(t *testing.T) {
	gdb := setupOrdersDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	stored := string(enums.ProviderRefundPending)
	order := seedOrder(t, gdb, func(o *models.Order) {
		o.RefundStatus = &stored
	})

	snapshot := StatusSnapshot{
		Status:          enums.OrderStatusInTransit,
		StripeStatus:    enums.SessionStatusComplete,
		TicketStatus:    enums.TicketStatusPosted,
		TicketUpdatedAt: time.Now().UTC(),
		TicketPrice:     decimal.NewFromFloat(12.50),
		NeedsRefund:     false,
		RefundStatus:    nil,
	}
	require.NoError(t, repo.ApplySnapshot(ctx, order.ID, snapshot))

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusInTransit, got.Status)
	require.NotNil(t, got.RefundStatus)
	assert.Equal(t, stored, *got.RefundStatus)
}

func TestApplySnapshot_MissingRowFails(t *testing.T) {
	gdb := setupOrdersDB(t)
	repo := NewRepository(gdb)

	err := repo.ApplySnapshot(context.Background(), uuid.New(), StatusSnapshot{
		Status:          enums.OrderStatusInTransit,
		StripeStatus:    enums.SessionStatusComplete,
		TicketStatus:    enums.TicketStatusPosted,
		TicketUpdatedAt: time.Now().UTC(),
	})
	require.Error(t, err)
}

func TestWithTx_RollbackDiscardsSnapshot(t *testing.T) {
	gdb := setupOrdersDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	order := seedOrder(t, gdb, nil)

	tx := gdb.Begin()
	require.NoError(t, tx.Error)

	err := repo.WithTx(tx).ApplySnapshot(ctx, order.ID, StatusSnapshot{
		Status:          enums.OrderStatusDelivered,
		StripeStatus:    enums.SessionStatusComplete,
		TicketStatus:    enums.TicketStatusPosted,
		TicketUpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback().Error)

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPreparing, got.Status)
}

func TestFindByID_Missing(t *testing.T) {
	gdb := setupOrdersDB(t)
	repo := NewRepository(gdb)

	got, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, pkgerrors.CodeMissingInput, pkgerrors.CodeOf(err))
}
