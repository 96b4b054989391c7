package production

import "errors"

// Repository errors. The service maps them to workflow kinds.
var (
	// ErrNotFound indicates the production order does not exist.
	ErrNotFound = errors.New("production order not found")
	// ErrQuotationNotFound indicates the source quotation does not exist.
	ErrQuotationNotFound = errors.New("quotation not found")
	// ErrDuplicateOrder indicates the quotation already has an order.
	ErrDuplicateOrder = errors.New("production order already exists for quotation")
)
