// Package clock abstracts the wall clock so date arithmetic is testable.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System reads time.Now.
type System struct{}

// Now returns the current local time.
func (System) Now() time.Time { return time.Now() }

// Fake is a settable clock for tests.
type Fake struct {
	now time.Time
}

// NewFake returns a Fake fixed at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the fixed time.
func (c *Fake) Now() time.Time { return c.now }

// Advance moves the clock forward.
func (c *Fake) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
