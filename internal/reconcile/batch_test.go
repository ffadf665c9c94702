package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gmottadev/pageturner-backend/internal/orders"
	"github.com/gmottadev/pageturner-backend/internal/payments"
	"github.com/gmottadev/pageturner-backend/pkg/db"
	"github.com/gmottadev/pageturner-backend/pkg/db/models"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
	"github.com/gmottadev/pageturner-backend/pkg/outbox"
	"github.com/gmottadev/pageturner-backend/pkg/shipping"
)

type fakeCarrier struct {
	mu          sync.Mutex
	tickets     map[string]shipping.Ticket
	ticketErrs  map[string]error
	cancelErr   error
	cancelCalls []string
}

func (f *fakeCarrier) GetTicket(_ context.Context, ticketID string) (shipping.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.ticketErrs[ticketID]; ok {
		return shipping.Ticket{}, err
	}
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return shipping.Ticket{}, pkgerrors.New(pkgerrors.CodeDependency, "ticket not found")
	}
	return ticket, nil
}

func (f *fakeCarrier) CancelTicket(_ context.Context, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, ticketID)
	return f.cancelErr
}

type fakeSessionGateway struct {
	mu       sync.Mutex
	sessions map[string]payments.Session
	errs     map[string]error
	refunds  map[string][]payments.RefundRecord
}

func (f *fakeSessionGateway) GetSession(_ context.Context, sessionID string) (payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[sessionID]; ok {
		return payments.Session{}, err
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return payments.Session{}, pkgerrors.New(pkgerrors.CodeDependency, "session not found")
	}
	return session, nil
}

func (f *fakeSessionGateway) ListRefunds(_ context.Context, paymentID string) ([]payments.RefundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunds[paymentID], nil
}

func setupBatchDB(t *testing.T) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	// Concurrent pipelines share one in-memory database; a single connection
	// keeps sqlite from tripping over overlapping writers.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.Exec(`
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
	`).Error)
	require.NoError(t, gdb.Exec(`
		CREATE TABLE outbox_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			published_at DATETIME,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		)
	`).Error)

	return db.NewFromConn(gdb)
}

type batchFixture struct {
	client     *db.Client
	repo       orders.Repository
	carrier    *fakeCarrier
	gateway    *fakeSessionGateway
	reconciler *BatchReconciler
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()

	client := setupBatchDB(t)
	repo := orders.NewRepository(client.DB())
	carrier := &fakeCarrier{
		tickets:    map[string]shipping.Ticket{},
		ticketErrs: map[string]error{},
	}
	gateway := &fakeSessionGateway{
		sessions: map[string]payments.Session{},
		errs:     map[string]error{},
		refunds:  map[string][]payments.RefundRecord{},
	}
	logg := testLogger()

	reconciler, err := NewBatchReconciler(BatchReconcilerParams{
		DB:       client,
		Orders:   repo,
		Carrier:  carrier,
		Gateway:  gateway,
		Resolver: NewRefundResolver(gateway, logg),
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:   logg,
	})
	require.NoError(t, err)

	return &batchFixture{
		client:     client,
		repo:       repo,
		carrier:    carrier,
		gateway:    gateway,
		reconciler: reconciler,
	}
}

func (f *batchFixture) seedOrder(t *testing.T, n int64, status enums.OrderStatus) models.Order {
	t.Helper()

	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: n,
		BuyerEmail:  fmt.Sprintf("buyer%d@example.com", n),
		TotalCents:  3200,
		Status:      status,
		SessionID:   fmt.Sprintf("cs_%d", n),
		TicketID:    fmt.Sprintf("tk_%d", n),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.client.DB().Create(&order).Error)
	return order
}

func (f *batchFixture) stubHealthy(order models.Order, ticketStatus enums.TicketStatus) {
	f.carrier.tickets[order.TicketID] = shipping.Ticket{
		ID:        order.TicketID,
		Status:    ticketStatus,
		UpdatedAt: time.Now().UTC(),
		Price:     decimal.NewFromFloat(18.70),
	}
	paymentID := "pi_" + order.TicketID
	f.gateway.sessions[order.SessionID] = payments.Session{
		PaymentID:     &paymentID,
		PaymentStatus: enums.PaymentStatusPaid,
		Status:        enums.SessionStatusComplete,
	}
}

func TestRunPass_EmptyCandidateSet(t *testing.T) {
	fixture := newBatchFixture(t)

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestRunPass_TransitionsReleasedOrderToInTransit(t *testing.T) {
	fixture := newBatchFixture(t)
	order := fixture.seedOrder(t, 1, enums.OrderStatusPreparing)
	fixture.stubHealthy(order, enums.TicketStatusReleased)

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Succeeded: 1}, summary)

	got, err := fixture.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusInTransit, got.Status)
	require.NotNil(t, got.TicketStatus)
	assert.Equal(t, enums.TicketStatusReleased, *got.TicketStatus)
	assert.False(t, got.NeedsRefund)
	assert.Nil(t, got.RefundStatus)

	// The status change landed in the outbox within the same transaction.
	var events []models.OutboxEvent
	require.NoError(t, fixture.client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderStatusChanged, events[0].EventType)
	assert.Equal(t, order.ID, events[0].AggregateID)
}

func TestRunPass_FailedOrderDoesNotAffectOthers(t *testing.T) {
	fixture := newBatchFixture(t)

	first := fixture.seedOrder(t, 1, enums.OrderStatusPreparing)
	second := fixture.seedOrder(t, 2, enums.OrderStatusPreparing)
	third := fixture.seedOrder(t, 3, enums.OrderStatusPreparing)

	fixture.stubHealthy(first, enums.TicketStatusReleased)
	fixture.stubHealthy(third, enums.TicketStatusReleased)
	fixture.stubHealthy(second, enums.TicketStatusReleased)
	fixture.carrier.ticketErrs[second.TicketID] =
		pkgerrors.New(pkgerrors.CodeDependency, "carrier timeout")

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 3, Succeeded: 2, Failed: 1}, summary)

	for _, order := range []models.Order{first, third} {
		got, err := fixture.repo.FindByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusInTransit, got.Status)
	}

	// The failed order persisted nothing.
	got, err := fixture.repo.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPreparing, got.Status)
	assert.Nil(t, got.TicketStatus)
}

func TestRunPass_MissingTicketIDCountsAsFailure(t *testing.T) {
	fixture := newBatchFixture(t)

	order := fixture.seedOrder(t, 1, enums.OrderStatusPreparing)
	require.NoError(t, fixture.client.DB().
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("ticket_id", "").Error)

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Failed: 1}, summary)
}

func TestRunPass_ExpiredSessionCancelsOrderAndTicket(t *testing.T) {
	fixture := newBatchFixture(t)
	order := fixture.seedOrder(t, 1, enums.OrderStatusPreparing)
	fixture.stubHealthy(order, enums.TicketStatusPending)
	session := fixture.gateway.sessions[order.SessionID]
	session.Status = enums.SessionStatusExpired
	fixture.gateway.sessions[order.SessionID] = session
	fixture.gateway.refunds["pi_"+order.TicketID] = []payments.RefundRecord{
		{ID: "re_1", Status: enums.ProviderRefundPending},
	}

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Succeeded: 1}, summary)

	got, err := fixture.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, enums.CancelReasonStripe, *got.CancelReason)
	require.NotNil(t, got.CancelMessage)
	assert.Equal(t, fmt.Sprintf("Stripe session %s expired.", order.TicketID), *got.CancelMessage)
	assert.False(t, got.NeedsRefund)
	require.NotNil(t, got.RefundStatus)
	assert.Equal(t, string(enums.ProviderRefundPending), *got.RefundStatus)

	assert.Equal(t, []string{order.TicketID}, fixture.carrier.cancelCalls)
}

func TestRunPass_CancelTicketFailureDoesNotBlockPersistence(t *testing.T) {
	fixture := newBatchFixture(t)
	order := fixture.seedOrder(t, 1, enums.OrderStatusPreparing)
	fixture.stubHealthy(order, enums.TicketStatusPending)
	session := fixture.gateway.sessions[order.SessionID]
	session.Status = enums.SessionStatusExpired
	fixture.gateway.sessions[order.SessionID] = session
	fixture.carrier.cancelErr = pkgerrors.New(pkgerrors.CodeDependency, "carrier down")

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Succeeded: 1}, summary)

	got, err := fixture.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, got.Status)
}

func TestRunPass_NoRefundRecordsKeepsObligationOpenWithSentinel(t *testing.T) {
	fixture := newBatchFixture(t)
	order := fixture.seedOrder(t, 1, enums.OrderStatusPreparing)
	fixture.stubHealthy(order, enums.TicketStatusCanceled)

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Succeeded: 1}, summary)

	got, err := fixture.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, got.Status)
	assert.True(t, got.NeedsRefund)
	require.NotNil(t, got.RefundStatus)
	assert.Equal(t, enums.RefundStatusNone, *got.RefundStatus)
}

func TestRunPass_SucceededRefundSettlesCanceledOrder(t *testing.T) {
	fixture := newBatchFixture(t)
	order := fixture.seedOrder(t, 1, enums.OrderStatusCanceled)
	require.NoError(t, fixture.client.DB().
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"needs_refund":  true,
			"refund_status": enums.RefundStatusNone,
		}).Error)
	fixture.stubHealthy(order, enums.TicketStatusCanceled)
	fixture.gateway.refunds["pi_"+order.TicketID] = []payments.RefundRecord{
		{ID: "re_1", Status: enums.ProviderRefundSucceeded},
	}

	summary, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Succeeded: 1}, summary)

	got, err := fixture.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, got.NeedsRefund)
	require.NotNil(t, got.RefundStatus)
	assert.Equal(t, string(enums.ProviderRefundSucceeded), *got.RefundStatus)

	// Settling the refund produces a resolved event; the next pass skips the
	// now-terminal order entirely.
	var events []models.OutboxEvent
	require.NoError(t, fixture.client.DB().
		Where("event_type = ?", enums.EventOrderRefundResolved).
		Find(&events).Error)
	assert.Len(t, events, 1)

	next, err := fixture.reconciler.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, next)
}
