package observability

import (
	"errors"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// WorkflowRecorder counts workflow operation outcomes.
type WorkflowRecorder interface {
	RecordWorkflow(operation, outcome string)
}

// NopRecorder discards observations.
type NopRecorder struct{}

// RecordWorkflow does nothing.
func (NopRecorder) RecordWorkflow(string, string) {}

// OutcomeOf classifies an operation error. Typed precondition failures are
// rejections; storage and unknown errors are failures.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, shared.ErrStorage):
		return OutcomeFailed
	case shared.KindOf(err) != nil:
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
