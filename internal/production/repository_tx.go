package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/quotations"
)

type txRepository struct {
	tx pgx.Tx
}

// LoadQuotation reads the quotation and holds its row lock for the transaction.
func (t *txRepository) LoadQuotation(ctx context.Context, id int64) (*quotations.Quotation, error) {
	q, err := quotations.Load(ctx, t.tx, id, true)
	if errors.Is(err, quotations.ErrNotFound) {
		return nil, ErrQuotationNotFound
	}
	return q, err
}

// OrderExistsForQuotation checks the one-order-per-quotation rule.
func (t *txRepository) OrderExistsForQuotation(ctx context.Context, quotationID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM production_orders WHERE quotation_id = $1)`, quotationID).Scan(&exists)
	return exists, err
}

// InsertOrder creates the order header. The unique constraint on quotation_id
// surfaces as ErrDuplicateOrder.
func (t *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO production_orders (
	quotation_id, status, delivery_deadline, completed_quantity, total_quantity, created_by
) VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at`,
		order.QuotationID, string(order.Status), order.DeliveryDeadline,
		order.CompletedQuantity, order.TotalQuantity, nullIfZero(order.CreatedBy),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueQuotationConstraint) {
			return Order{}, ErrDuplicateOrder
		}
		return Order{}, fmt.Errorf("insert production order: %w", err)
	}
	return order, nil
}

// InsertItem creates one order line.
func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_order_items (
	production_order_id, quotation_item_id, item_type, item_id, item_name, item_code,
	quantity, completed_quantity, status, notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
RETURNING id`,
		item.OrderID, item.QuotationItemID, string(item.ItemType), item.ItemID, item.Name, item.Code,
		item.Quantity, item.CompletedQuantity, string(item.Status), item.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert production order item: %w", err)
	}
	return id, nil
}

// LockOrder loads the order with its items, both locked FOR UPDATE.
func (t *txRepository) LockOrder(ctx context.Context, id int64) (*Order, error) {
	return loadOrder(ctx, t.tx, id, true)
}

// UpdateItem writes item progress.
func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `UPDATE production_order_items
SET completed_quantity = $2, status = $3, notes = NULLIF($4, ''), updated_at = NOW()
WHERE id = $1`, item.ID, item.CompletedQuantity, string(item.Status), item.Notes)
	if err != nil {
		return fmt.Errorf("update production order item %d: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update production order item %d: %w", item.ID, errNoRowsUpdated)
	}
	return nil
}

// UpdateOrder writes status and aggregates.
func (t *txRepository) UpdateOrder(ctx context.Context, order Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE production_orders
SET status = $2, completed_quantity = $3, total_quantity = $4, updated_at = NOW()
WHERE id = $1`, order.ID, string(order.Status), order.CompletedQuantity, order.TotalQuantity)
	if err != nil {
		return fmt.Errorf("update production order %d: %w", order.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvents adds audit entries. Existing entries are never touched.
func (t *txRepository) AppendEvents(ctx context.Context, orderID int64, entries []AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO production_order_events (
	production_order_id, occurred_at, kind, from_status, to_status, actor_id, message
) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, e.At, string(e.Kind), nullIfEmpty(e.FromStatus), nullIfEmpty(e.ToStatus), nullIfZero(e.ActorID), e.Message)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append production order events: %w", err)
	}
	return nil
}

// InsertNotifications writes notifications inside the same transaction.
func (t *txRepository) InsertNotifications(ctx context.Context, entries []notifications.Notification) ([]notifications.Notification, error) {
	return notifications.Append(ctx, t.tx, entries)
}
