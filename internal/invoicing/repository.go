package invoicing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// Repository exposes invoice reads and transactional scopes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListInconsistent(ctx context.Context) ([]int64, error)
}

// TxRepository is the write side used inside a transaction.
type TxRepository interface {
	LockInvoice(ctx context.Context, id int64) (*Invoice, error)
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	UpdatePaid(ctx context.Context, id int64, paid decimal.Decimal, status Status) error
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

const invoiceSelect = `SELECT i.id, i.quotation_id, q.reference, q.owner_id, i.number,
	i.subtotal, i.discount, i.tax, i.total, i.paid_amount, i.status
FROM invoices i
JOIN quotations q ON q.id = i.quotation_id
WHERE i.id = $1`

func loadInvoice(ctx context.Context, q db.Querier, id int64, lock bool) (*Invoice, error) {
	query := invoiceSelect
	if lock {
		query += ` FOR UPDATE OF i`
	}
	var inv Invoice
	var status string
	err := q.QueryRow(ctx, query, id).Scan(&inv.ID, &inv.QuotationID, &inv.QuotationRef, &inv.OwnerID, &inv.Number,
		&inv.Subtotal, &inv.Discount, &inv.Tax, &inv.Total, &inv.Paid, &status)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load invoice %d: %w", id, err)
	}
	inv.Status = Status(status)
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	return loadInvoice(ctx, r.db, id, false)
}

func (r *repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, paid_on, amount, method,
	COALESCE(reference, ''), COALESCE(notes, ''), COALESCE(created_by, 0), created_at
FROM invoice_payments
WHERE invoice_id = $1
ORDER BY paid_on, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PaidOn, &p.Amount, &p.Method,
			&p.Reference, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListInconsistent returns invoices whose paid_amount differs from their payments.
func (r *repository) ListInconsistent(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT i.id
FROM invoices i
LEFT JOIN invoice_payments p ON p.invoice_id = i.id
GROUP BY i.id, i.paid_amount
HAVING i.paid_amount <> COALESCE(SUM(p.amount), 0)
ORDER BY i.id`)
	if err != nil {
		return nil, fmt.Errorf("list inconsistent invoices: %w", err)
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

type txRepository struct {
	tx pgx.Tx
}

// LockInvoice reads the invoice holding its row lock until commit.
func (t *txRepository) LockInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return loadInvoice(ctx, t.tx, id, true)
}

func (t *txRepository) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM invoice_payments WHERE invoice_id = $1`, invoiceID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum invoice payments: %w", err)
	}
	return sum, nil
}

func (t *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_payments (
	invoice_id, paid_on, amount, method, reference, notes, created_by
) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
RETURNING id, created_at`,
		p.InvoiceID, p.PaidOn, p.Amount, p.Method, p.Reference, p.Notes, nullIfZero(p.CreatedBy),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("insert invoice payment: %w", err)
	}
	return p, nil
}

func (t *txRepository) UpdatePaid(ctx context.Context, id int64, paid decimal.Decimal, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET paid_amount = $2, status = $3, updated_at = NOW() WHERE id = $1`,
		id, paid, string(status))
	if err != nil {
		return fmt.Errorf("update invoice %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertNotifications(ctx context.Context, entries []notifications.Notification) ([]notifications.Notification, error) {
	return notifications.Append(ctx, t.tx, entries)
}

func nullIfZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
