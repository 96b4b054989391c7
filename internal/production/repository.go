package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/quotations"
)

const uniqueQuotationConstraint = "production_orders_quotation_uniq"

// Repository exposes read access and transactional scopes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	GetSummary(ctx context.Context, id int64) (*Order, error)
	ListInconsistent(ctx context.Context) ([]int64, error)
}

// TxRepository is the write side used inside a transaction.
type TxRepository interface {
	LoadQuotation(ctx context.Context, id int64) (*quotations.Quotation, error)
	OrderExistsForQuotation(ctx context.Context, quotationID int64) (bool, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	LockOrder(ctx context.Context, id int64) (*Order, error)
	UpdateItem(ctx context.Context, item Item) error
	UpdateOrder(ctx context.Context, order Order) error
	AppendEvents(ctx context.Context, orderID int64, entries []AuditEntry) error
	InsertNotifications(ctx context.Context, entries []notifications.Notification) ([]notifications.Notification, error)
}

type repository struct {
	pool *pgxpool.Pool
	db   db.Querier
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	order, err := loadOrder(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	order.Events, err = loadEvents(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) GetSummary(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(r.db.QueryRow(ctx, orderSelect+` WHERE po.id = $1`, id))
}

// ListInconsistent returns orders whose cached aggregates disagree with their items.
func (r *repository) ListInconsistent(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT po.id
FROM production_orders po
LEFT JOIN production_order_items i ON i.production_order_id = po.id
GROUP BY po.id, po.completed_quantity, po.total_quantity
HAVING po.completed_quantity <> COALESCE(SUM(i.completed_quantity), 0)
    OR po.total_quantity <> COALESCE(SUM(i.quantity), 0)
ORDER BY po.id`)
	if err != nil {
		return nil, fmt.Errorf("list inconsistent orders: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const orderSelect = `SELECT po.id, po.quotation_id, q.reference, c.name, q.owner_id, po.status,
	po.delivery_deadline, po.completed_quantity, po.total_quantity, COALESCE(po.created_by, 0),
	po.created_at, po.updated_at
FROM production_orders po
JOIN quotations q ON q.id = po.quotation_id
JOIN customers c ON c.id = q.customer_id`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.QuotationID, &o.QuotationRef, &o.CustomerName, &o.OwnerID, &status,
		&o.DeliveryDeadline, &o.CompletedQuantity, &o.TotalQuantity, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan production order: %w", err)
	}
	o.Status = Status(status)
	return &o, nil
}

func loadOrder(ctx context.Context, q db.Querier, id int64, lock bool) (*Order, error) {
	query := orderSelect + ` WHERE po.id = $1`
	if lock {
		query += ` FOR UPDATE OF po`
	}
	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	itemQuery := `SELECT id, production_order_id, quotation_item_id, item_type, item_id, item_name, item_code,
	quantity, completed_quantity, status, COALESCE(notes, '')
FROM production_order_items
WHERE production_order_id = $1
ORDER BY id`
	if lock {
		itemQuery += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, itemQuery, id)
	if err != nil {
		return nil, fmt.Errorf("load production order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		var itemType, status string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.QuotationItemID, &itemType, &it.ItemID, &it.Name, &it.Code,
			&it.Quantity, &it.CompletedQuantity, &status, &it.Notes); err != nil {
			return nil, err
		}
		it.ItemType = catalog.ItemType(itemType)
		it.Status = ItemStatus(status)
		order.Items = append(order.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return order, nil
}

func loadEvents(ctx context.Context, q db.Querier, orderID int64) ([]AuditEntry, error) {
	rows, err := q.Query(ctx, `SELECT id, production_order_id, occurred_at, kind,
	COALESCE(from_status, ''), COALESCE(to_status, ''), COALESCE(actor_id, 0), message
FROM production_order_events
WHERE production_order_id = $1
ORDER BY occurred_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load production order events: %w", err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var kind, from, to string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.At, &kind, &from, &to, &e.ActorID, &e.Message); err != nil {
			return nil, err
		}
		e.Kind, e.FromStatus, e.ToStatus = EventKind(kind), Status(from), Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullIfEmpty(s Status) *string {
	if s == "" {
		return nil
	}
	str := string(s)
	return &str
}

var errNoRowsUpdated = errors.New("no rows updated")
