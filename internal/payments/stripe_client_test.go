package payments

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmottadev/pageturner-backend/pkg/enums"
	pkgerrors "github.com/gmottadev/pageturner-backend/pkg/errors"
)

func TestSessionSnapshot(t *testing.T) {
	sess := &stripe.CheckoutSession{
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Status:        stripe.CheckoutSessionStatusComplete,
	}

	snapshot := sessionSnapshot(sess)
	require.NotNil(t, snapshot.PaymentID)
	assert.Equal(t, "pi_123", *snapshot.PaymentID)
	assert.Equal(t, enums.PaymentStatusPaid, snapshot.PaymentStatus)
	assert.Equal(t, enums.SessionStatusComplete, snapshot.Status)
}

func TestSessionSnapshot_NoPaymentIntent(t *testing.T) {
	sess := &stripe.CheckoutSession{
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Status:        stripe.CheckoutSessionStatusOpen,
	}

	snapshot := sessionSnapshot(sess)
	assert.Nil(t, snapshot.PaymentID)
	assert.Equal(t, enums.PaymentStatusUnpaid, snapshot.PaymentStatus)
	assert.Equal(t, enums.SessionStatusOpen, snapshot.Status)
}

func TestSessionSnapshot_UnknownStatus(t *testing.T) {
	sess := &stripe.CheckoutSession{
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Status:        stripe.CheckoutSessionStatus("draft"),
	}

	// Unrecognized provider statuses fold into the unknown bucket, which the
	// decision table treats as "no transition evidence".
	snapshot := sessionSnapshot(sess)
	assert.Equal(t, enums.SessionStatusUnknown, snapshot.Status)
}

func TestClassifyStripeError(t *testing.T) {
	rateLimited := &stripe.Error{HTTPStatusCode: 429}
	assert.Equal(t, pkgerrors.CodeDependency,
		pkgerrors.CodeOf(classifyStripeError(rateLimited, "op")))

	serverErr := &stripe.Error{HTTPStatusCode: 502}
	assert.Equal(t, pkgerrors.CodeDependency,
		pkgerrors.CodeOf(classifyStripeError(serverErr, "op")))

	badRequest := &stripe.Error{HTTPStatusCode: 400}
	assert.Equal(t, pkgerrors.CodeInternal,
		pkgerrors.CodeOf(classifyStripeError(badRequest, "op")))

	transport := errors.New("connection reset")
	assert.Equal(t, pkgerrors.CodeDependency,
		pkgerrors.CodeOf(classifyStripeError(transport, "op")))
}
