package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/clock"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ErrNotFound indicates a missing invoice row.
var ErrNotFound = errors.New("invoice not found")

// PaymentRequest records money received against an invoice.
type PaymentRequest struct {
	InvoiceID   int64
	Date        time.Time
	Amount      decimal.Decimal
	Method      string
	Reference   string
	Notes       string
	NotifyOwner bool
	ActorID     int64
}

// PaymentResult describes a recorded payment.
type PaymentResult struct {
	Payment  Payment `json:"payment"`
	Balance  Balance `json:"balance"`
	Notified int     `json:"notified"`
	Message  string  `json:"message"`
}

// Service is the invoice payment reconciler.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	clock   clock.Clock
	relay   notifications.Relayer
	metrics observability.WorkflowRecorder
	reads   singleflight.Group
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:    repo,
		logger:  logger,
		clock:   clock.System{},
		relay:   notifications.NopRelayer{},
		metrics: observability.NopRecorder{},
	}
}

// SetClock overrides the wall clock.
func (s *Service) SetClock(c clock.Clock) {
	if c != nil {
		s.clock = c
	}
}

// SetRelayer sets the post-commit notification relay.
func (s *Service) SetRelayer(r notifications.Relayer) {
	if r != nil {
		s.relay = r
	}
}

// SetMetrics sets the workflow outcome recorder.
func (s *Service) SetMetrics(m observability.WorkflowRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// AddPayment appends a payment and recomputes paid amount and status in one
// transaction. The balance is read under the invoice row lock.
func (s *Service) AddPayment(ctx context.Context, req PaymentRequest) (result PaymentResult, err error) {
	defer func() { s.metrics.RecordWorkflow("add_payment", observability.OutcomeOf(err)) }()

	method := strings.TrimSpace(req.Method)
	paidOn := req.Date
	if paidOn.IsZero() {
		paidOn = clock.StartOfDay(s.clock.Now())
	}

	var created []notifications.Notification
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, req.InvoiceID)
		if errors.Is(err, ErrNotFound) {
			return shared.Fail(shared.ErrNotFound, "Invoice %d does not exist.", req.InvoiceID)
		}
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return shared.Fail(shared.ErrInvoiceCancelled, "Invoice %s is cancelled and cannot take payments.", inv.Number)
		}
		if !req.Amount.IsPositive() {
			return shared.Fail(shared.ErrInvalidAmount, "Payment amount must be greater than zero.")
		}
		if !req.Amount.Equal(req.Amount.Truncate(moneyPlaces)) {
			return shared.Fail(shared.ErrInvalidAmount, "Payment amount %s has more than %d decimal places.", req.Amount, moneyPlaces)
		}

		paid, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv.Paid = paid
		remaining := inv.Remaining()
		if req.Amount.GreaterThan(remaining) {
			return shared.Fail(shared.ErrExceedsBalance,
				"Payment of %s exceeds the remaining balance of %s on invoice %s.",
				notifications.Amount(req.Amount.StringFixed(moneyPlaces)), notifications.Amount(remaining.StringFixed(moneyPlaces)), inv.Number)
		}

		payment, err := tx.InsertPayment(ctx, Payment{
			InvoiceID: inv.ID,
			PaidOn:    paidOn,
			Amount:    req.Amount,
			Method:    method,
			Reference: strings.TrimSpace(req.Reference),
			Notes:     strings.TrimSpace(req.Notes),
			CreatedBy: req.ActorID,
		})
		if err != nil {
			return err
		}

		inv.Paid = paid.Add(req.Amount)
		inv.Status = DeriveStatus(inv.Paid, inv.Total)
		if err := tx.UpdatePaid(ctx, inv.ID, inv.Paid, inv.Status); err != nil {
			return err
		}

		result = PaymentResult{Payment: payment, Balance: BalanceOf(*inv)}
		result.Message = describePayment(inv, payment)

		if req.NotifyOwner && inv.OwnerID > 0 {
			created, err = tx.InsertNotifications(ctx, notifications.FanOut(
				[]int64{inv.OwnerID}, inv.ID, notifications.RelatedInvoice, result.Message))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if shared.KindOf(err) != nil {
			s.logger.Info("payment rejected", slog.Int64("invoice_id", req.InvoiceID), slog.String("reason", shared.UserSafeMessage(err)))
		} else {
			s.logger.Error("add payment failed", slog.Int64("invoice_id", req.InvoiceID), slog.Any("error", err))
		}
		return PaymentResult{}, shared.StorageFailure("record the payment", err)
	}

	s.relay.Relay(ctx, created)
	result.Notified = len(created)
	s.logger.Info("payment recorded",
		slog.Int64("invoice_id", req.InvoiceID),
		slog.Int64("payment_id", result.Payment.ID),
		slog.String("amount", result.Payment.Amount.String()),
		slog.String("status", string(result.Balance.Status)),
	)
	return result, nil
}

// Balance returns total, paid and remaining for an invoice.
func (s *Service) Balance(ctx context.Context, id int64) (Balance, error) {
	v, err := s.coalesce(ctx, "balance:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		inv, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, s.readError(id, err)
		}
		return BalanceOf(*inv), nil
	})
	if err != nil {
		return Balance{}, err
	}
	return v.(Balance), nil
}

// Payments lists the payments of an invoice in date order.
func (s *Service) Payments(ctx context.Context, id int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, s.readError(id, err)
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, shared.StorageFailure("load payments", err)
	}
	return payments, nil
}

// Reconcile recomputes paid amount and status from the payment rows.
// Cancelled invoices keep their status. It reports whether anything changed.
func (s *Service) Reconcile(ctx context.Context, id int64) (bool, error) {
	healed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		sum, err := tx.SumPayments(ctx, id)
		if err != nil {
			return err
		}
		status := inv.Status
		if status != StatusCancelled {
			status = DeriveStatus(sum, inv.Total)
		}
		if sum.Equal(inv.Paid) && status == inv.Status {
			return nil
		}
		healed = true
		s.logger.Warn("invoice aggregate drift",
			slog.Int64("invoice_id", id),
			slog.String("stored_paid", inv.Paid.String()),
			slog.String("payments_sum", sum.String()),
		)
		return tx.UpdatePaid(ctx, id, sum, status)
	})
	if err != nil {
		return false, fmt.Errorf("reconcile invoice %d: %w", id, err)
	}
	return healed, nil
}

// ListInconsistent returns ids of invoices with drifted paid amounts.
func (s *Service) ListInconsistent(ctx context.Context) ([]int64, error) {
	return s.repo.ListInconsistent(ctx)
}

func (s *Service) readError(id int64, err error) error {
	if errors.Is(err, ErrNotFound) {
		return shared.Fail(shared.ErrNotFound, "Invoice %d does not exist.", id)
	}
	return shared.StorageFailure("load the invoice", err)
}

func describePayment(inv *Invoice, p Payment) string {
	amount := notifications.Amount(p.Amount.StringFixed(moneyPlaces))
	switch inv.Status {
	case StatusPaid:
		return fmt.Sprintf("Payment of %s recorded on invoice %s. The invoice is now fully paid.", amount, inv.Number)
	default:
		return fmt.Sprintf("Payment of %s recorded on invoice %s. Remaining balance: %s.",
			amount, inv.Number, notifications.Amount(inv.Remaining().StringFixed(moneyPlaces)))
	}
}

// readTimeout bounds a coalesced load once it is detached from its caller.
const readTimeout = 5 * time.Second

// coalesce shares one load per key between concurrent callers. The load runs
// on a context detached from whichever caller started it; each caller still
// stops waiting when its own context ends.
func (s *Service) coalesce(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	ch := s.reads.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()
		return load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
