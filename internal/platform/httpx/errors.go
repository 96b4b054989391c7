// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ErrValidation marks malformed request input.
var ErrValidation = errors.New("validation failed")

type errorMapping struct {
	kind   error
	status int
	title  string
}

var mappings = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrInvalidStatus, http.StatusBadRequest, "Invalid Status"},
	{shared.ErrInvalidAmount, http.StatusBadRequest, "Invalid Amount"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{shared.ErrAlreadyExists, http.StatusConflict, "Already Exists"},
	{shared.ErrNotAccepted, http.StatusUnprocessableEntity, "Quotation Not Accepted"},
	{shared.ErrNoItems, http.StatusUnprocessableEntity, "No Items"},
	{shared.ErrNotModifiable, http.StatusUnprocessableEntity, "Not Modifiable"},
	{shared.ErrInvoiceCancelled, http.StatusUnprocessableEntity, "Invoice Cancelled"},
	{shared.ErrExceedsBalance, http.StatusUnprocessableEntity, "Exceeds Balance"},
}

// StatusFor returns the HTTP status used for err.
func StatusFor(err error) int {
	for _, m := range mappings {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps workflow errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range mappings {
		if errors.Is(err, m.kind) {
			detail := shared.UserSafeMessage(err)
			if errors.Is(err, ErrValidation) {
				detail = err.Error()
			}
			Problem(w, m.status, m.title, detail)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
}
