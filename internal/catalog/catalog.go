// Package catalog resolves product and service references for copy-on-create.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// ItemType distinguishes catalog tables.
type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemService ItemType = "service"
)

// ErrUnknownItem indicates the referenced catalog row is missing.
var ErrUnknownItem = errors.New("catalog: unknown item")

// Valid reports whether t names a catalog table.
func (t ItemType) Valid() bool {
	return t == ItemProduct || t == ItemService
}

// Entry is the snapshot copied into production order items.
type Entry struct {
	Name string
	Code string
}

// Repository looks up catalog rows.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Lookup resolves the current name and code of an item.
func (r *Repository) Lookup(ctx context.Context, itemType ItemType, itemID int64) (Entry, error) {
	var query string
	switch itemType {
	case ItemProduct:
		query = `SELECT name, sku FROM products WHERE id = $1`
	case ItemService:
		query = `SELECT name, code FROM services WHERE id = $1`
	default:
		return Entry{}, fmt.Errorf("%w: type %q", ErrUnknownItem, itemType)
	}
	var e Entry
	if err := r.q.QueryRow(ctx, query, itemID).Scan(&e.Name, &e.Code); err != nil {
		if db.IsNoRows(err) {
			return Entry{}, fmt.Errorf("%w: %s %d", ErrUnknownItem, itemType, itemID)
		}
		return Entry{}, fmt.Errorf("catalog: lookup %s %d: %w", itemType, itemID, err)
	}
	return e, nil
}
