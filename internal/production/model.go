// Package production turns accepted quotations into production orders and
// tracks their item-level progress.
package production

import (
	"fmt"
	"math"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
)

// Status is the lifecycle value of a production order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether items of an order in s are frozen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ItemStatus is derived from item progress.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemCompleted ItemStatus = "completed"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	return s == ItemPending || s == ItemCompleted
}

// Order is the fulfillment record of one accepted quotation.
type Order struct {
	ID                int64        `json:"id"`
	QuotationID       int64        `json:"quotation_id"`
	QuotationRef      string       `json:"quotation_reference"`
	CustomerName      string       `json:"customer_name"`
	OwnerID           int64        `json:"owner_id"`
	Status            Status       `json:"status"`
	DeliveryDeadline  time.Time    `json:"delivery_deadline"`
	CompletedQuantity int          `json:"completed_quantity"`
	TotalQuantity     int          `json:"total_quantity"`
	CreatedBy         int64        `json:"created_by,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Items             []Item       `json:"items,omitempty"`
	Events            []AuditEntry `json:"events,omitempty"`
}

// Item is one line of a production order.
type Item struct {
	ID                int64            `json:"id"`
	OrderID           int64            `json:"production_order_id"`
	QuotationItemID   int64            `json:"quotation_item_id"`
	ItemType          catalog.ItemType `json:"item_type"`
	ItemID            int64            `json:"item_id"`
	Name              string           `json:"name"`
	Code              string           `json:"code"`
	Quantity          int              `json:"quantity"`
	CompletedQuantity int              `json:"completed_quantity"`
	Status            ItemStatus       `json:"status"`
	Notes             string           `json:"notes,omitempty"`
}

// SetCompleted clamps v into [0, Quantity] and derives the status.
// It reports whether anything changed.
func (it *Item) SetCompleted(v int) bool {
	v = clamp(v, it.Quantity)
	status := deriveItemStatus(v, it.Quantity)
	changed := v != it.CompletedQuantity || status != it.Status
	it.CompletedQuantity = v
	it.Status = status
	return changed
}

func clamp(v, ceiling int) int {
	if v < 0 {
		return 0
	}
	if v > ceiling {
		return ceiling
	}
	return v
}

func deriveItemStatus(completed, quantity int) ItemStatus {
	if completed >= quantity {
		return ItemCompleted
	}
	return ItemPending
}

// Recompute folds item rows into the cached order aggregates.
func (o *Order) Recompute() {
	completed, total := 0, 0
	for _, it := range o.Items {
		completed += it.CompletedQuantity
		total += it.Quantity
	}
	o.CompletedQuantity = completed
	o.TotalQuantity = total
}

// AllItemsCompleted is false for orders without items.
func (o *Order) AllItemsCompleted() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if it.Status != ItemCompleted {
			return false
		}
	}
	return true
}

// clone returns a copy sharing no slices with o.
func (o *Order) clone() *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.Events = append([]AuditEntry(nil), o.Events...)
	return &cp
}

// Percent returns completion as a percentage with two decimals.
func Percent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*10000) / 100
}

// EventKind classifies audit entries.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status_changed"
	EventNote          EventKind = "note"
)

// AuditEntry is one immutable line of an order's history.
type AuditEntry struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"production_order_id"`
	At         time.Time `json:"at"`
	Kind       EventKind `json:"kind"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status,omitempty"`
	ActorID    int64     `json:"actor_id,omitempty"`
	Message    string    `json:"message"`
}

func (e AuditEntry) String() string {
	stamp := e.At.Format("2006-01-02 15:04")
	switch e.Kind {
	case EventStatusChanged:
		line := fmt.Sprintf("[%s] status changed: %s → %s", stamp, e.FromStatus, e.ToStatus)
		if e.Message != "" {
			line += " (" + e.Message + ")"
		}
		return line
	default:
		return fmt.Sprintf("[%s] %s", stamp, e.Message)
	}
}

// Progress is the completion read view of an order.
type Progress struct {
	OrderID           int64   `json:"production_order_id"`
	Status            Status  `json:"status"`
	CompletedQuantity int     `json:"completed_quantity"`
	TotalQuantity     int     `json:"total_quantity"`
	Percent           float64 `json:"percent"`
}
