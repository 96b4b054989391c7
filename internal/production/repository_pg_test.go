package production_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
	"github.com/odyssey-erp/fulfillment/internal/production"
	"github.com/odyssey-erp/fulfillment/internal/shared"
	"github.com/odyssey-erp/fulfillment/internal/users"
	fulfillmenttest "github.com/odyssey-erp/fulfillment/testing"
)

func qty(n int) *int { return &n }

func seedAcceptedQuotation(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	var ownerID, customerID, productID, quotationID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO users (email, name) VALUES ($1, 'Owner') RETURNING id`,
		fmt.Sprintf("owner-%d@example.com", suffix)).Scan(&ownerID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO customers (name) VALUES ('Acme Ltd') RETURNING id`).Scan(&customerID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (sku, name) VALUES ($1, 'Widget') RETURNING id`,
		fmt.Sprintf("W-%d", suffix)).Scan(&productID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO quotations (reference, customer_id, owner_id, issued_on, valid_until, total, status)
VALUES ($1, $2, $3, CURRENT_DATE, CURRENT_DATE + 30, 100, 'accepted') RETURNING id`,
		fmt.Sprintf("Q-%d", suffix), customerID, ownerID).Scan(&quotationID))
	_, err := pool.Exec(ctx, `INSERT INTO quotation_items (quotation_id, item_type, item_id, quantity, unit_price, subtotal)
VALUES ($1, 'product', $2, 4, 25, 100)`, quotationID, productID)
	require.NoError(t, err)
	return quotationID
}

func TestPostgres_ConcurrentCreateYieldsOneOrder(t *testing.T) {
	pool := fulfillmenttest.Postgres(t)
	quotationID := seedAcceptedQuotation(t, pool)

	directory := users.NewDirectory(users.NewRepository(pool), "admin")
	svc := production.NewService(production.NewRepository(pool), directory, production.Config{ProductionRole: "production"}, nil)
	svc.SetCatalog(catalog.NewRepository(pool))

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), production.CreateRequest{QuotationID: quotationID})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	}
	assert.Equal(t, 1, succeeded)

	var count int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM production_orders WHERE quotation_id = $1`, quotationID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgres_ItemsRoundTrip(t *testing.T) {
	pool := fulfillmenttest.Postgres(t)
	quotationID := seedAcceptedQuotation(t, pool)

	directory := users.NewDirectory(users.NewRepository(pool), "admin")
	svc := production.NewService(production.NewRepository(pool), directory, production.Config{ProductionRole: "production"}, nil)
	svc.SetCatalog(catalog.NewRepository(pool))

	ctx := context.Background()
	created, err := svc.Create(ctx, production.CreateRequest{QuotationID: quotationID})
	require.NoError(t, err)
	require.Len(t, created.Order.Items, 1)
	assert.Equal(t, "Widget", created.Order.Items[0].Name)

	res, err := svc.UpdateItems(ctx, production.ItemsRequest{
		OrderID: created.Order.ID,
		Items:   []production.ItemUpdate{{ItemID: created.Order.Items[0].ID, CompletedQuantity: qty(9)}},
	})
	require.NoError(t, err)
	assert.Equal(t, production.StatusCompleted, res.Status)

	order, err := svc.Get(ctx, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, order.CompletedQuantity)
	assert.Len(t, order.Events, 2)

	ids, err := svc.ListInconsistent(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, created.Order.ID)
}
