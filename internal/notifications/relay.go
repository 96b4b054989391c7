package notifications

import "context"

// Relayer forwards committed notifications to out-of-band delivery.
// Implementations must not fail the caller; delivery problems are logged.
type Relayer interface {
	Relay(ctx context.Context, entries []Notification)
}

// NopRelayer drops everything.
type NopRelayer struct{}

// Relay does nothing.
func (NopRelayer) Relay(context.Context, []Notification) {}
