// Package quotations holds the quotation status engine and eligibility view.
package quotations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
)

// Status is the lifecycle value of a quotation.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// DefaultLeadTimeDays applies when a quotation carries no lead-time term.
const DefaultLeadTimeDays = 10

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusExpired}

// Valid reports whether s is one of the five statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo is total: any valid status may follow any other.
// Tightening this would change observable behaviour and is pending product review.
func (s Status) CanTransitionTo(next Status) bool {
	return next.Valid()
}

// Quotation is a priced proposal to a customer.
type Quotation struct {
	ID           int64
	CustomerID   int64
	CustomerName string
	OwnerID      int64
	Reference    string
	IssuedOn     time.Time
	ValidUntil   time.Time
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	Status       Status
	LeadTimeDays *int
	Items        []Item
}

// LeadTime returns the lead-time term in days, defaulting when absent.
func (q Quotation) LeadTime(fallback int) int {
	if q.LeadTimeDays != nil && *q.LeadTimeDays >= 0 {
		return *q.LeadTimeDays
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultLeadTimeDays
}

// TotalQuantity sums item quantities.
func (q Quotation) TotalQuantity() int {
	total := 0
	for _, item := range q.Items {
		total += item.Quantity
	}
	return total
}

// Item is a quotation line referencing a catalog product or service.
type Item struct {
	ID              int64
	QuotationID     int64
	ItemType        catalog.ItemType
	ItemID          int64
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	Subtotal        decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// LineTotals computes discount, tax and line total for an item.
func LineTotals(quantity int, unitPrice, discountPercent, taxPercent decimal.Decimal) (discount, tax, total decimal.Decimal) {
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	discount = gross.Mul(discountPercent).Div(hundred).Round(2)
	net := gross.Sub(discount)
	tax = net.Mul(taxPercent).Div(hundred).Round(2)
	total = net.Add(tax)
	return discount, tax, total
}

// Eligibility reports which downstream records may still be created.
type Eligibility struct {
	QuotationID         int64  `json:"quotation_id"`
	Status              Status `json:"status"`
	HasProductionOrder  bool   `json:"has_production_order"`
	HasInvoice          bool   `json:"has_invoice"`
	CanCreateProduction bool   `json:"can_create_production_order"`
	CanCreateInvoice    bool   `json:"can_create_invoice"`
}

// NewEligibility derives the offers from the quotation status and existing records.
func NewEligibility(id int64, status Status, hasOrder, hasInvoice bool) Eligibility {
	accepted := status == StatusAccepted
	return Eligibility{
		QuotationID:         id,
		Status:              status,
		HasProductionOrder:  hasOrder,
		HasInvoice:          hasInvoice,
		CanCreateProduction: accepted && !hasOrder,
		CanCreateInvoice:    accepted && !hasInvoice,
	}
}
