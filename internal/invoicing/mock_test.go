package invoicing

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
)

var errInjected = errors.New("injected failure")

type memState struct {
	invoices map[int64]Invoice
	payments []Payment
	notes    []notifications.Notification
	nextID   int64
}

func (s *memState) clone() memState {
	cp := memState{
		invoices: make(map[int64]Invoice, len(s.invoices)),
		payments: append([]Payment(nil), s.payments...),
		notes:    append([]notifications.Notification(nil), s.notes...),
		nextID:   s.nextID,
	}
	for k, v := range s.invoices {
		cp.invoices[k] = v
	}
	return cp
}

// mockRepository serialises transactions the way the invoice row lock does
// and restores the snapshot when the callback fails.
type mockRepository struct {
	mu     sync.Mutex
	state  memState
	failOn string
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: memState{invoices: map[int64]Invoice{}}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(ctx, &mockTx{repo: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.state.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *mockRepository) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.state.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) ListInconsistent(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, inv := range m.state.invoices {
		if !inv.Paid.Equal(m.sum(id)) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *mockRepository) sum(invoiceID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range m.state.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

func (m *mockRepository) addInvoice(inv Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.invoices[inv.ID] = inv
}

func (m *mockRepository) invoice(id int64) Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.invoices[id]
}

func (m *mockRepository) paymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.payments)
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

func (t *mockTx) LockInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := t.repo.state.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (t *mockTx) SumPayments(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	return t.repo.sum(invoiceID), nil
}

func (t *mockTx) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	if err := t.fail("InsertPayment"); err != nil {
		return Payment{}, err
	}
	t.repo.state.nextID++
	p.ID = t.repo.state.nextID
	t.repo.state.payments = append(t.repo.state.payments, p)
	return p, nil
}

func (t *mockTx) UpdatePaid(_ context.Context, id int64, paid decimal.Decimal, status Status) error {
	if err := t.fail("UpdatePaid"); err != nil {
		return err
	}
	inv, ok := t.repo.state.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Paid, inv.Status = paid, status
	t.repo.state.invoices[id] = inv
	return nil
}

func (t *mockTx) InsertNotifications(_ context.Context, entries []notifications.Notification) ([]notifications.Notification, error) {
	if err := t.fail("InsertNotifications"); err != nil {
		return nil, err
	}
	out := make([]notifications.Notification, 0, len(entries))
	for _, n := range entries {
		t.repo.state.nextID++
		n.ID = t.repo.state.nextID
		t.repo.state.notes = append(t.repo.state.notes, n)
		out = append(out, n)
	}
	return out, nil
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
