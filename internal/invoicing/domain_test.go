package invoicing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	total := decimal.NewFromInt(1000)
	assert.Equal(t, StatusUnpaid, DeriveStatus(decimal.Zero, total))
	assert.Equal(t, StatusPartiallyPaid, DeriveStatus(decimal.RequireFromString("0.01"), total))
	assert.Equal(t, StatusPartiallyPaid, DeriveStatus(decimal.RequireFromString("999.99"), total))
	assert.Equal(t, StatusPaid, DeriveStatus(total, total))
}

func TestRemainingNeverNegative(t *testing.T) {
	inv := Invoice{Total: decimal.NewFromInt(10), Paid: decimal.NewFromInt(12)}
	assert.True(t, inv.Remaining().IsZero())

	inv.Paid = decimal.RequireFromString("2.5")
	assert.Equal(t, "7.5", inv.Remaining().String())
	b := BalanceOf(inv)
	assert.True(t, b.Remaining.Equal(inv.Remaining()))
}
