package invoicing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/platform/clock"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const (
	invoiceID = int64(7)
	ownerID   = int64(10)
)

var testNow = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *mockRepository
	relay *recordingRelay
}

func newFixture(total string) *fixture {
	repo := newMockRepository()
	repo.addInvoice(Invoice{
		ID:           invoiceID,
		QuotationID:  100,
		QuotationRef: "Q-2024-001",
		OwnerID:      ownerID,
		Number:       "INV-2024-0007",
		Total:        decimal.RequireFromString(total),
		Paid:         decimal.Zero,
		Status:       StatusUnpaid,
	})
	relay := &recordingRelay{}
	svc := NewService(repo, nil)
	svc.SetRelayer(relay)
	svc.SetClock(clock.NewFake(testNow))
	return &fixture{svc: svc, repo: repo, relay: relay}
}

func (f *fixture) pay(amount string) (PaymentResult, error) {
	return f.svc.AddPayment(context.Background(), PaymentRequest{
		InvoiceID: invoiceID,
		Amount:    decimal.RequireFromString(amount),
		Method:    "bank_transfer",
		ActorID:   ownerID,
	})
}

func TestAddPayment_PartialThenOverpayThenExact(t *testing.T) {
	f := newFixture("1000")

	res, err := f.pay("400")
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, res.Balance.Status)
	assert.True(t, res.Balance.Paid.Equal(decimal.NewFromInt(400)))
	assert.True(t, res.Balance.Remaining.Equal(decimal.NewFromInt(600)))

	_, err = f.pay("601")
	require.ErrorIs(t, err, shared.ErrExceedsBalance)
	assert.Contains(t, shared.UserSafeMessage(err), "600.00")
	inv := f.repo.invoice(invoiceID)
	assert.True(t, inv.Paid.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, StatusPartiallyPaid, inv.Status)
	assert.Equal(t, 1, f.repo.paymentCount())

	res, err = f.pay("600")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Balance.Status)
	assert.True(t, res.Balance.Remaining.IsZero())
	assert.Contains(t, res.Message, "fully paid")
	assert.Equal(t, 2, f.repo.paymentCount())
}

func TestAddPayment_BalanceBoundary(t *testing.T) {
	f := newFixture("250.50")

	_, err := f.pay("250.51")
	require.ErrorIs(t, err, shared.ErrExceedsBalance)

	res, err := f.pay("250.50")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Balance.Status)

	_, err = f.pay("0.01")
	require.ErrorIs(t, err, shared.ErrExceedsBalance)
}

func TestAddPayment_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		invoice int64
		amount  string
		setup   func(*fixture)
		kind    error
	}{
		{name: "missing invoice", invoice: 99, amount: "10", kind: shared.ErrNotFound},
		{name: "zero amount", invoice: invoiceID, amount: "0", kind: shared.ErrInvalidAmount},
		{name: "negative amount", invoice: invoiceID, amount: "-5", kind: shared.ErrInvalidAmount},
		{name: "sub-cent amount", invoice: invoiceID, amount: "10.005", kind: shared.ErrInvalidAmount},
		{
			name:    "cancelled invoice",
			invoice: invoiceID,
			amount:  "10",
			setup: func(f *fixture) {
				inv := f.repo.invoice(invoiceID)
				inv.Status = StatusCancelled
				f.repo.addInvoice(inv)
			},
			kind: shared.ErrInvoiceCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("1000")
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.svc.AddPayment(context.Background(), PaymentRequest{
				InvoiceID: tt.invoice,
				Amount:    decimal.RequireFromString(tt.amount),
				Method:    "cash",
			})
			require.ErrorIs(t, err, tt.kind)
			assert.Zero(t, f.repo.paymentCount())
		})
	}
}

func TestAddPayment_TrailingZeroDecimalsAccepted(t *testing.T) {
	f := newFixture("100")
	res, err := f.pay("10.500")
	require.NoError(t, err)
	assert.True(t, res.Payment.Amount.Equal(decimal.RequireFromString("10.5")))
}

func TestAddPayment_DefaultsDateToToday(t *testing.T) {
	f := newFixture("100")
	res, err := f.pay("10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.Payment.PaidOn)
	assert.Equal(t, "bank_transfer", res.Payment.Method)
}

func TestAddPayment_RollsBackOnStorageFailure(t *testing.T) {
	for _, op := range []string{"UpdatePaid", "InsertNotifications"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture("1000")
			f.repo.failOn = op
			_, err := f.svc.AddPayment(context.Background(), PaymentRequest{
				InvoiceID:   invoiceID,
				Amount:      decimal.NewFromInt(100),
				Method:      "cash",
				NotifyOwner: true,
			})
			require.ErrorIs(t, err, shared.ErrStorage)
			assert.Equal(t, "Could not record the payment. No changes were saved.", shared.UserSafeMessage(err))

			inv := f.repo.invoice(invoiceID)
			assert.True(t, inv.Paid.IsZero())
			assert.Equal(t, StatusUnpaid, inv.Status)
			assert.Zero(t, f.repo.paymentCount())
			assert.Empty(t, f.repo.sentNotifications())
			assert.Zero(t, f.relay.count())
		})
	}
}

func TestAddPayment_NotifiesOwnerWhenAsked(t *testing.T) {
	f := newFixture("1000")
	res, err := f.svc.AddPayment(context.Background(), PaymentRequest{
		InvoiceID:   invoiceID,
		Amount:      decimal.RequireFromString("1234.5"),
		Method:      "cash",
		NotifyOwner: true,
	})
	require.Error(t, err)
	assert.Zero(t, res.Notified)

	res, err = f.svc.AddPayment(context.Background(), PaymentRequest{
		InvoiceID:   invoiceID,
		Amount:      decimal.RequireFromString("250"),
		Method:      "cash",
		NotifyOwner: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
	sent := f.repo.sentNotifications()
	require.Len(t, sent, 1)
	assert.Equal(t, ownerID, sent[0].UserID)
	assert.Equal(t, notifications.RelatedInvoice, sent[0].RelatedType)
	assert.Contains(t, sent[0].Message, "750.00")
	assert.Equal(t, 1, f.relay.count())
}

func TestAddPayment_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture("1000")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.pay("300")
		}()
	}
	wg.Wait()

	inv := f.repo.invoice(invoiceID)
	assert.True(t, inv.Paid.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, 3, f.repo.paymentCount())
	assert.Equal(t, StatusPartiallyPaid, inv.Status)
}

func TestBalanceAndPayments(t *testing.T) {
	f := newFixture("500")
	_, err := f.pay("125.25")
	require.NoError(t, err)

	b, err := f.svc.Balance(context.Background(), invoiceID)
	require.NoError(t, err)
	assert.True(t, b.Remaining.Equal(decimal.RequireFromString("374.75")))

	payments, err := f.svc.Payments(context.Background(), invoiceID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, SumPayments(payments).Equal(b.Paid))

	_, err = f.svc.Balance(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Payments(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReconcile_HealsDriftedPaidAmount(t *testing.T) {
	f := newFixture("500")
	_, err := f.pay("200")
	require.NoError(t, err)

	inv := f.repo.invoice(invoiceID)
	inv.Paid = decimal.NewFromInt(50)
	inv.Status = StatusPaid
	f.repo.addInvoice(inv)

	ids, err := f.svc.ListInconsistent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{invoiceID}, ids)

	healed, err := f.svc.Reconcile(context.Background(), invoiceID)
	require.NoError(t, err)
	assert.True(t, healed)
	inv = f.repo.invoice(invoiceID)
	assert.True(t, inv.Paid.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, StatusPartiallyPaid, inv.Status)

	healed, err = f.svc.Reconcile(context.Background(), invoiceID)
	require.NoError(t, err)
	assert.False(t, healed)
}
