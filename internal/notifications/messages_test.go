package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderCreatedNamesReferenceCustomerAndDeadline(t *testing.T) {
	msg := OrderCreated("Q-2024-001", "Acme Ltd", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "New production order for quotation Q-2024-001 (Acme Ltd). Delivery deadline: 2024-03-11.", msg)
}

func TestOrderStatusChanged(t *testing.T) {
	assert.Equal(t, "Production order for quotation Q-1 is now in progress.", OrderStatusChanged("Q-1", "in_progress", ""))
	assert.Equal(t, "Production order for quotation Q-1 is now cancelled. Note: customer withdrew",
		OrderStatusChanged("Q-1", "cancelled", "  customer withdrew "))
}

func TestProgressUpdated(t *testing.T) {
	msg := ProgressUpdated("Q-1", 3, 5, 60, "")
	assert.Equal(t, "Production progress for quotation Q-1: 3 of 5 units done (60.0%).", msg)
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "1,000.00", Amount("1000"))
	assert.Equal(t, "1,234,567.50", Amount("1234567.5"))
	assert.Equal(t, "-12.30", Amount("-12.3"))
	assert.Equal(t, "abc", Amount("abc"))
}

func TestFanOutSkipsDuplicatesAndInvalidIDs(t *testing.T) {
	out := FanOut([]int64{4, 0, 7, 4}, 9, RelatedProductionOrder, "hello")
	assert.Len(t, out, 2)
	assert.Equal(t, int64(4), out[0].UserID)
	assert.Equal(t, int64(7), out[1].UserID)
	for _, n := range out {
		assert.Equal(t, RelatedProductionOrder, n.RelatedType)
		assert.Equal(t, int64(9), n.RelatedID)
	}
}
