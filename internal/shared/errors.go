package shared

import (
	"errors"
	"fmt"
)

// Workflow error kinds. Callers match them with errors.Is.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus indicates a status value outside the allowed set.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidAmount indicates a non-positive or malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyExists indicates a uniqueness invariant would be violated.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotAccepted indicates the quotation is not in accepted status.
	ErrNotAccepted = errors.New("quotation not accepted")
	// ErrNoItems indicates the quotation has no line items.
	ErrNoItems = errors.New("quotation has no items")
	// ErrNotModifiable indicates the production order is in a terminal status.
	ErrNotModifiable = errors.New("not modifiable")
	// ErrInvoiceCancelled indicates payments against a cancelled invoice.
	ErrInvoiceCancelled = errors.New("invoice cancelled")
	// ErrExceedsBalance indicates a payment larger than the remaining balance.
	ErrExceedsBalance = errors.New("exceeds balance")
	// ErrStorage indicates the underlying transaction failed.
	ErrStorage = errors.New("storage failure")
)

const genericMessage = "The request could not be completed. Please try again."

// WorkflowError pairs an error kind with a message fit for end users.
type WorkflowError struct {
	Kind    error
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the cause.
func (e *WorkflowError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Fail builds a WorkflowError with a formatted message.
func Fail(kind error, format string, args ...any) error {
	return &WorkflowError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps a store error. Workflow errors pass through untouched.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var wf *WorkflowError
	if errors.As(err, &wf) {
		return err
	}
	return &WorkflowError{Kind: ErrStorage, Message: fmt.Sprintf("Could not %s. No changes were saved.", op), Err: err}
}

// UserSafeMessage returns text suitable for showing to end users.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var wf *WorkflowError
	if errors.As(err, &wf) && wf.Message != "" {
		return wf.Message
	}
	return genericMessage
}

// KindOf reports the workflow kind carried by err, or nil.
func KindOf(err error) error {
	var wf *WorkflowError
	if errors.As(err, &wf) {
		return wf.Kind
	}
	return nil
}
