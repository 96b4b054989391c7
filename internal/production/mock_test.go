package production

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/platform/clock"
	"github.com/odyssey-erp/fulfillment/internal/platform/lock"
	"github.com/odyssey-erp/fulfillment/internal/quotations"
)

var errInjected = errors.New("injected failure")

type memState struct {
	quotes map[int64]quotations.Quotation
	orders map[int64]Order
	events map[int64][]AuditEntry
	notes  []notifications.Notification
	nextID int64
}

func (s *memState) clone() memState {
	cp := memState{
		quotes: make(map[int64]quotations.Quotation, len(s.quotes)),
		orders: make(map[int64]Order, len(s.orders)),
		events: make(map[int64][]AuditEntry, len(s.events)),
		notes:  append([]notifications.Notification(nil), s.notes...),
		nextID: s.nextID,
	}
	for k, v := range s.quotes {
		v.Items = append([]quotations.Item(nil), v.Items...)
		cp.quotes[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]Item(nil), v.Items...)
		cp.orders[k] = v
	}
	for k, v := range s.events {
		cp.events[k] = append([]AuditEntry(nil), v...)
	}
	return cp
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// mockRepository serialises transactions and restores the snapshot on error.
type mockRepository struct {
	mu          sync.Mutex
	state       memState
	failOn      string
	staleExists bool
	txCount     int

	// readGate, when set, holds Get until closed or the load context ends.
	readGate    chan struct{}
	readStarted chan struct{}
	reads       atomic.Int32
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: memState{
		quotes: map[int64]quotations.Quotation{},
		orders: map[int64]Order{},
		events: map[int64][]AuditEntry{},
	}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	snapshot := m.state.clone()
	if err := fn(ctx, &mockTx{repo: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Order, error) {
	m.reads.Add(1)
	if m.readGate != nil {
		select {
		case m.readStarted <- struct{}{}:
		default:
		}
		select {
		case <-m.readGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = append([]Item(nil), o.Items...)
	o.Events = append([]AuditEntry(nil), m.state.events[id]...)
	return &o, nil
}

func (m *mockRepository) GetSummary(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = nil
	return &o, nil
}

func (m *mockRepository) ListInconsistent(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, o := range m.state.orders {
		probe := o
		probe.Recompute()
		if probe.CompletedQuantity != o.CompletedQuantity || probe.TotalQuantity != o.TotalQuantity {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// helpers used by tests

func (m *mockRepository) addQuotation(q quotations.Quotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.quotes[q.ID] = q
}

func (m *mockRepository) order(id int64) Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.state.orders[id]
	o.Items = append([]Item(nil), o.Items...)
	return o
}

func (m *mockRepository) setOrder(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.orders[o.ID] = o
}

func (m *mockRepository) ordersFor(quotationID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.state.orders {
		if o.QuotationID == quotationID {
			n++
		}
	}
	return n
}

func (m *mockRepository) events(orderID int64) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.state.events[orderID]...)
}

func (m *mockRepository) sentNotifications() []notifications.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifications.Notification(nil), m.state.notes...)
}

type mockTx struct {
	repo *mockRepository
}

func (t *mockTx) fail(op string) error {
	if t.repo.failOn == op {
		return errInjected
	}
	return nil
}

func (t *mockTx) LoadQuotation(_ context.Context, id int64) (*quotations.Quotation, error) {
	if err := t.fail("LoadQuotation"); err != nil {
		return nil, err
	}
	q, ok := t.repo.state.quotes[id]
	if !ok {
		return nil, ErrQuotationNotFound
	}
	q.Items = append([]quotations.Item(nil), q.Items...)
	return &q, nil
}

func (t *mockTx) OrderExistsForQuotation(_ context.Context, quotationID int64) (bool, error) {
	if t.repo.staleExists {
		return false, nil
	}
	for _, o := range t.repo.state.orders {
		if o.QuotationID == quotationID {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) InsertOrder(_ context.Context, order Order) (Order, error) {
	if err := t.fail("InsertOrder"); err != nil {
		return Order{}, err
	}
	for _, o := range t.repo.state.orders {
		if o.QuotationID == order.QuotationID {
			return Order{}, ErrDuplicateOrder
		}
	}
	order.ID = t.repo.state.id()
	order.CreatedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	order.UpdatedAt = order.CreatedAt
	stored := order
	stored.Items, stored.Events = nil, nil
	t.repo.state.orders[order.ID] = stored
	return order, nil
}

func (t *mockTx) InsertItem(_ context.Context, item Item) (int64, error) {
	if err := t.fail("InsertItem"); err != nil {
		return 0, err
	}
	o, ok := t.repo.state.orders[item.OrderID]
	if !ok {
		return 0, ErrNotFound
	}
	item.ID = t.repo.state.id()
	o.Items = append(o.Items, item)
	t.repo.state.orders[o.ID] = o
	return item.ID, nil
}

func (t *mockTx) LockOrder(_ context.Context, id int64) (*Order, error) {
	o, ok := t.repo.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	q := t.repo.state.quotes[o.QuotationID]
	o.QuotationRef, o.CustomerName, o.OwnerID = q.Reference, q.CustomerName, q.OwnerID
	o.Items = append([]Item(nil), o.Items...)
	return &o, nil
}

func (t *mockTx) UpdateItem(_ context.Context, item Item) error {
	if err := t.fail("UpdateItem"); err != nil {
		return err
	}
	o := t.repo.state.orders[item.OrderID]
	items := append([]Item(nil), o.Items...)
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			o.Items = items
			t.repo.state.orders[o.ID] = o
			return nil
		}
	}
	return errNoRowsUpdated
}

func (t *mockTx) UpdateOrder(_ context.Context, order Order) error {
	if err := t.fail("UpdateOrder"); err != nil {
		return err
	}
	stored, ok := t.repo.state.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status = order.Status
	stored.CompletedQuantity = order.CompletedQuantity
	stored.TotalQuantity = order.TotalQuantity
	t.repo.state.orders[order.ID] = stored
	return nil
}

func (t *mockTx) AppendEvents(_ context.Context, orderID int64, entries []AuditEntry) error {
	if err := t.fail("AppendEvents"); err != nil {
		return err
	}
	for _, e := range entries {
		e.ID = t.repo.state.id()
		e.OrderID = orderID
		t.repo.state.events[orderID] = append(t.repo.state.events[orderID], e)
	}
	return nil
}

func (t *mockTx) InsertNotifications(_ context.Context, entries []notifications.Notification) ([]notifications.Notification, error) {
	if err := t.fail("InsertNotifications"); err != nil {
		return nil, err
	}
	out := make([]notifications.Notification, 0, len(entries))
	for _, n := range entries {
		n.ID = t.repo.state.id()
		t.repo.state.notes = append(t.repo.state.notes, n)
		out = append(out, n)
	}
	return out, nil
}

type fakeDirectory map[string][]int64

func (d fakeDirectory) ListIDsByRole(_ context.Context, role string) ([]int64, error) {
	return d[role], nil
}

type fakeCatalog map[int64]catalog.Entry

func (c fakeCatalog) Lookup(_ context.Context, _ catalog.ItemType, id int64) (catalog.Entry, error) {
	e, ok := c[id]
	if !ok {
		return catalog.Entry{}, catalog.ErrUnknownItem
	}
	return e, nil
}

type recordingRelay struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recordingRelay) Relay(_ context.Context, entries []notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, entries...)
}

func (r *recordingRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type busyLocker struct{ calls int }

func (l *busyLocker) Obtain(context.Context, string) (lock.Releaser, error) {
	l.calls++
	return nil, lock.ErrNotObtained
}

const (
	ownerID   = int64(10)
	quoteID   = int64(100)
	quoteRef  = "Q-2024-001"
	customer  = "Acme Ltd"
	leadDays  = 10
	firstItem = int64(1001)
)

var testNow = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func qty(n int) *int { return &n }

func acceptedQuotation(quantities ...int) quotations.Quotation {
	q := quotations.Quotation{
		ID:           quoteID,
		OwnerID:      ownerID,
		Reference:    quoteRef,
		CustomerName: customer,
		Status:       quotations.StatusAccepted,
	}
	for i, n := range quantities {
		q.Items = append(q.Items, quotations.Item{
			ID:          firstItem + int64(i),
			QuotationID: quoteID,
			ItemType:    catalog.ItemProduct,
			ItemID:      int64(500 + i),
			Quantity:    n,
		})
	}
	return q
}

type fixture struct {
	svc   *Service
	repo  *mockRepository
	relay *recordingRelay
	clock *clock.Fake
}

func newFixture() *fixture {
	repo := newMockRepository()
	relay := &recordingRelay{}
	clk := clock.NewFake(testNow)
	dir := fakeDirectory{"production": {21, 22, 23}}
	svc := NewService(repo, dir, Config{ProductionRole: "production", DefaultLeadTimeDays: leadDays}, nil)
	svc.SetRelayer(relay)
	svc.SetClock(clk)
	return &fixture{svc: svc, repo: repo, relay: relay, clock: clk}
}

// aggregatesConsistent checks cached order totals and item status against the item rows.
func (f *fixture) aggregatesConsistent(orderID int64) bool {
	o := f.repo.order(orderID)
	probe := o
	probe.Recompute()
	for _, it := range o.Items {
		if it.CompletedQuantity < 0 || it.CompletedQuantity > it.Quantity {
			return false
		}
		if (it.Status == ItemCompleted) != (it.CompletedQuantity >= it.Quantity) {
			return false
		}
	}
	return probe.CompletedQuantity == o.CompletedQuantity && probe.TotalQuantity == o.TotalQuantity
}
