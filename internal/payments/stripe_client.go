package payments

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/gmottadev/pageturner-backend/pkg/config"
	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
	pkgstripe "github.com/gmottadev/pageturner-backend/pkg/stripe"
)

const (
	defaultCallTimeout    = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
)

type stripeGateway struct {
	callTimeout    time.Duration
	maxAttempts    int
	initialBackoff time.Duration
}

// NewStripeGateway wraps the shared Stripe client as a GatewayClient with
// bounded per-call timeouts and retries for transient provider failures.
func NewStripeGateway(api *pkgstripe.Client, cfg config.ReconcileConfig) GatewayClient {
	if api == nil {
		return nil
	}
	g := &stripeGateway{
		callTimeout:    cfg.CallTimeout,
		maxAttempts:    cfg.RetryMaxAttempts,
		initialBackoff: cfg.RetryInitialBackoff,
	}
	if g.callTimeout <= 0 {
		g.callTimeout = defaultCallTimeout
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxAttempts
	}
	if g.initialBackoff <= 0 {
		g.initialBackoff = defaultInitialBackoff
	}
	return g
}

func (g *stripeGateway) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, pkgerrors.New(pkgerrors.CodeMissingInput, "session id is required")
	}

	var snapshot Session
	err := g.withRetry(ctx, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		sess, err := session.Get(sessionID, params)
		if err != nil {
			return classifyStripeError(err, "retrieve checkout session")
		}
		snapshot = sessionSnapshot(sess)
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return snapshot, nil
}

func (g *stripeGateway) ListRefunds(ctx context.Context, paymentID string) ([]RefundRecord, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMissingInput, "payment id is required")
	}

	var records []RefundRecord
	err := g.withRetry(ctx, func(ctx context.Context) error {
		params := &stripe.RefundListParams{
			PaymentIntent: stripe.String(paymentID),
		}
		params.Context = ctx
		records = records[:0]
		iter := refund.List(params)
		for iter.Next() {
			r := iter.Refund()
			status, err := enums.ParseProviderRefundStatus(string(r.Status))
			if err != nil {
				// Statuses outside the closed set are kept verbatim so the
				// resolver can classify them conservatively.
				status = enums.ProviderRefundStatus(r.Status)
			}
			records = append(records, RefundRecord{ID: r.ID, Status: status})
		}
		if err := iter.Err(); err != nil {
			return classifyStripeError(err, "list refunds")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (g *stripeGateway) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(g.maxAttempts-1), retry.NewExponential(g.initialBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func sessionSnapshot(sess *stripe.CheckoutSession) Session {
	snapshot := Session{
		PaymentStatus: enums.PaymentStatus(sess.PaymentStatus),
		Status:        enums.ParseSessionStatus(string(sess.Status)),
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		id := sess.PaymentIntent.ID
		snapshot.PaymentID = &id
	}
	return snapshot
}

func classifyStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if pkgerrors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
	}
	// Anything that is not a structured Stripe error is a transport failure.
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
