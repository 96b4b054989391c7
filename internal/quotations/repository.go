package quotations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// ErrNotFound indicates a missing quotation row.
var ErrNotFound = errors.New("quotations: record not found")

// Repository is the persistence port of the status engine.
type Repository interface {
	Get(ctx context.Context, id int64) (*Quotation, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	HasProductionOrder(ctx context.Context, id int64) (bool, error)
	HasInvoice(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db db.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	return Load(ctx, r.db, id, false)
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update quotation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) HasProductionOrder(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM production_orders WHERE quotation_id = $1)`, id)
}

func (r *repository) HasInvoice(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM invoices WHERE quotation_id = $1)`, id)
}

func exists(ctx context.Context, q db.Querier, sql string, id int64) (bool, error) {
	var ok bool
	if err := q.QueryRow(ctx, sql, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Load reads a quotation and its items through q. With lock set the
// quotation row is held FOR UPDATE until q's transaction ends.
func Load(ctx context.Context, q db.Querier, id int64, lock bool) (*Quotation, error) {
	query := `SELECT q.id, q.customer_id, c.name, q.owner_id, q.reference, q.issued_on, q.valid_until,
	q.subtotal, q.discount, q.tax, q.total, q.status, q.lead_time_days
FROM quotations q
JOIN customers c ON c.id = q.customer_id
WHERE q.id = $1`
	if lock {
		query += ` FOR UPDATE OF q`
	}
	var quote Quotation
	var status string
	err := q.QueryRow(ctx, query, id).Scan(
		&quote.ID, &quote.CustomerID, &quote.CustomerName, &quote.OwnerID, &quote.Reference,
		&quote.IssuedOn, &quote.ValidUntil,
		&quote.Subtotal, &quote.Discount, &quote.Tax, &quote.Total,
		&status, &quote.LeadTimeDays,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load quotation %d: %w", id, err)
	}
	quote.Status = Status(status)

	rows, err := q.Query(ctx, `SELECT id, quotation_id, item_type, item_id, quantity, unit_price,
	discount_percent, tax_percent, subtotal
FROM quotation_items
WHERE quotation_id = $1
ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load quotation items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		var itemType string
		if err := rows.Scan(&item.ID, &item.QuotationID, &itemType, &item.ItemID, &item.Quantity,
			&item.UnitPrice, &item.DiscountPercent, &item.TaxPercent, &item.Subtotal); err != nil {
			return nil, err
		}
		item.ItemType = catalog.ItemType(itemType)
		quote.Items = append(quote.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &quote, nil
}
