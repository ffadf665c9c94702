package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/gmottadev/pageturner-backend/internal/orders"
	"github.com/gmottadev/pageturner-backend/internal/payments"
	"github.com/gmottadev/pageturner-backend/pkg/db"
	"github.com/gmottadev/pageturner-backend/pkg/db/models"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
	"github.com/gmottadev/pageturner-backend/pkg/logger"
	"github.com/gmottadev/pageturner-backend/pkg/outbox"
	"github.com/gmottadev/pageturner-backend/pkg/shipping"
)

const eventSource = "reconciler"

// CarrierClient is the subset of shipping carrier operations a pass consumes.
type CarrierClient interface {
	GetTicket(ctx context.Context, ticketID string) (shipping.Ticket, error)
	CancelTicket(ctx context.Context, ticketID string) error
}

// Summary reports how one pass went. Attempted == Succeeded + Failed.
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
}

// BatchReconcilerParams carries the dependencies for NewBatchReconciler.
type BatchReconcilerParams struct {
	DB       *db.Client
	Orders   orders.Repository
	Carrier  CarrierClient
	Gateway  payments.GatewayClient
	Resolver *RefundResolver
	Outbox   *outbox.Service
	Logger   *logger.Logger
}

// BatchReconciler runs reconciliation passes: it lists every non-terminal
// order, pipelines each one concurrently and isolates per-order failures.
type BatchReconciler struct {
	db       *db.Client
	orders   orders.Repository
	carrier  CarrierClient
	gateway  payments.GatewayClient
	resolver *RefundResolver
	outbox   *outbox.Service
	logg     *logger.Logger
}

func NewBatchReconciler(params BatchReconcilerParams) (*BatchReconciler, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if params.Carrier == nil {
		return nil, fmt.Errorf("carrier client is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway client is required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("refund resolver is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &BatchReconciler{
		db:       params.DB,
		orders:   params.Orders,
		carrier:  params.Carrier,
		gateway:  params.Gateway,
		resolver: params.Resolver,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

// RunPass reconciles every non-terminal order once. Each order's pipeline
// either fully computes and persists a snapshot or persists nothing; one
// order's failure never touches another's.
func (b *BatchReconciler) RunPass(ctx context.Context) (Summary, error) {
	candidates, err := b.orders.FindReconcilable(ctx)
	if err != nil {
		return Summary{}, err
	}
	if len(candidates) == 0 {
		return Summary{}, nil
	}

	var (
		mu      sync.Mutex
		summary = Summary{Attempted: len(candidates)}
		wg      sync.WaitGroup
	)

	for _, order := range candidates {
		wg.Add(1)
		go func(order models.Order) {
			defer wg.Done()

			err := b.reconcileOrder(ctx, order)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return
			}
			summary.Succeeded++
		}(order)
	}
	wg.Wait()

	return summary, nil
}

func (b *BatchReconciler) reconcileOrder(ctx context.Context, order models.Order) (err error) {
	ctx = b.logg.WithOrderID(ctx, order.ID.String())

	defer func() {
		if recovered := recover(); recovered != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal,
				fmt.Sprintf("order pipeline panicked: %v", recovered))
		}
		if err != nil {
			b.logg.Error(ctx, "order reconciliation failed", err)
		}
	}()

	if order.TicketID == "" {
		return pkgerrors.New(pkgerrors.CodeMissingInput, "order has no shipping ticket id")
	}
	if order.SessionID == "" {
		return pkgerrors.New(pkgerrors.CodeMissingInput, "order has no checkout session id")
	}

	ticket, session, err := b.fetchSnapshots(ctx, order)
	if err != nil {
		return err
	}

	decision := ComputeNewStatus(order, ticket, session)

	if decision.CancelTicket {
		b.cancelTicketBestEffort(ctx, order.TicketID)
	}

	snapshot := orders.StatusSnapshot{
		Status:          decision.Status,
		CancelReason:    decision.CancelReason,
		CancelMessage:   decision.CancelMessage,
		StripeStatus:    decision.SessionStatus,
		StripePaymentID: decision.PaymentID,
		TicketStatus:    decision.TicketStatus,
		TicketUpdatedAt: decision.TicketUpdatedAt,
		Tracking:        decision.Tracking,
		TicketPrice:     decision.TicketPrice,
	}

	if decision.NeedsRefundCandidate {
		stage := b.logg.WithStage(ctx, "refund-resolve")
		outcome, resolveErr := b.resolver.Resolve(stage, *decision.PaymentID)
		if resolveErr != nil {
			return resolveErr
		}
		snapshot.NeedsRefund = outcome.NeedsRefund
		snapshot.RefundStatus = &outcome.RefundStatus
	}

	return b.persist(ctx, order, snapshot)
}

// fetchSnapshots issues the ticket and session reads in parallel; the
// pipeline needs both before the decision table can run.
func (b *BatchReconciler) fetchSnapshots(ctx context.Context, order models.Order) (shipping.Ticket, payments.Session, error) {
	var (
		ticket  shipping.Ticket
		session payments.Session
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		stage := b.logg.WithStage(groupCtx, "ticket-fetch")
		got, err := b.carrier.GetTicket(stage, order.TicketID)
		if err != nil {
			return err
		}
		ticket = got
		return nil
	})
	group.Go(func() error {
		stage := b.logg.WithStage(groupCtx, "session-fetch")
		got, err := b.gateway.GetSession(stage, order.SessionID)
		if err != nil {
			return err
		}
		session = got
		return nil
	})
	if err := group.Wait(); err != nil {
		return shipping.Ticket{}, payments.Session{}, err
	}
	return ticket, session, nil
}

// cancelTicketBestEffort asks the carrier to drop the shipment. A failure is
// logged and forgotten; the next pass re-evaluates and re-issues the cancel.
func (b *BatchReconciler) cancelTicketBestEffort(ctx context.Context, ticketID string) {
	ctx = b.logg.WithStage(ctx, "ticket-cancel")
	if err := b.carrier.CancelTicket(ctx, ticketID); err != nil {
		b.logg.Warn(b.logg.WithField(ctx, "error", err.Error()),
			"best-effort ticket cancel failed")
	}
}

// persist writes the snapshot and the matching outbox events in one
// transaction, so downstream consumers never observe a status change that
// was not committed.
func (b *BatchReconciler) persist(ctx context.Context, order models.Order, snapshot orders.StatusSnapshot) error {
	return b.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := b.orders.WithTx(tx).ApplySnapshot(ctx, order.ID, snapshot); err != nil {
			return err
		}
		return b.emitEvents(ctx, tx, order, snapshot)
	})
}

func (b *BatchReconciler) emitEvents(ctx context.Context, tx *gorm.DB, order models.Order, snapshot orders.StatusSnapshot) error {
	now := time.Now().UTC()

	if snapshot.Status != order.Status {
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			OccurredAt:    now,
			Data: map[string]any{
				"order_id":     order.ID.String(),
				"order_number": order.OrderNumber,
				"from_status":  order.Status.String(),
				"to_status":    snapshot.Status.String(),
			},
		}
		if err := b.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
	}

	// Refund edges: emit only on transitions, not on every pass that
	// re-observes an open obligation.
	switch {
	case snapshot.NeedsRefund && !order.NeedsRefund:
		return b.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefundRequired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			OccurredAt:    now,
			Data: map[string]any{
				"order_id":      order.ID.String(),
				"refund_status": derefOr(snapshot.RefundStatus, ""),
			},
		})
	case !snapshot.NeedsRefund && order.NeedsRefund && snapshot.RefundStatus != nil:
		return b.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefundResolved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        eventSource,
			OccurredAt:    now,
			Data: map[string]any{
				"order_id":      order.ID.String(),
				"refund_status": *snapshot.RefundStatus,
			},
		})
	}
	return nil
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
