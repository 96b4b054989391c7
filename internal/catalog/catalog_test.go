package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemTypeValid(t *testing.T) {
	assert.True(t, ItemProduct.Valid())
	assert.True(t, ItemService.Valid())
	assert.False(t, ItemType("bundle").Valid())
}

func TestLookupRejectsUnknownType(t *testing.T) {
	repo := NewRepository(nil)
	_, err := repo.Lookup(context.Background(), ItemType("bundle"), 1)
	assert.ErrorIs(t, err, ErrUnknownItem)
}
