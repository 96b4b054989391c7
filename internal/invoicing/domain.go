// Package invoicing reconciles payments against externally created invoices.
package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusUnpaid        Status = "unpaid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"
)

// moneyPlaces is the number of decimal places money amounts may carry.
const moneyPlaces = 2

// Invoice is the payable document of a quotation.
type Invoice struct {
	ID           int64           `json:"id"`
	QuotationID  int64           `json:"quotation_id"`
	QuotationRef string          `json:"quotation_reference"`
	OwnerID      int64           `json:"owner_id"`
	Number       string          `json:"number"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Status       Status          `json:"status"`
}

// Remaining is total minus paid, never below zero.
func (i Invoice) Remaining() decimal.Decimal {
	r := i.Total.Sub(i.Paid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Payment is an append-only ledger entry against an invoice.
type Payment struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	PaidOn    time.Time       `json:"paid_on"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy int64           `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeriveStatus maps paid against total. Cancellation is never derived.
func DeriveStatus(paid, total decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// SumPayments folds payment amounts.
func SumPayments(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// Balance is the remaining-balance read view.
type Balance struct {
	InvoiceID int64           `json:"invoice_id"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
}

// BalanceOf builds the read view of inv.
func BalanceOf(inv Invoice) Balance {
	return Balance{
		InvoiceID: inv.ID,
		Status:    inv.Status,
		Total:     inv.Total,
		Paid:      inv.Paid,
		Remaining: inv.Remaining(),
	}
}
