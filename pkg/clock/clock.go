// Package clock abstracts wall-clock access so time-of-day risk scoring,
// bucket boundaries and retry backoff are testable.
package clock

import "time"

// Clock supplies the current time and delayed timers.
type Clock interface {
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
}

// System is the production Clock.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now().UTC() }

// After implements Clock.
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fixed is a Clock pinned to a settable instant, for tests.
type Fixed struct {
	T time.Time
}

// Now implements Clock.
func (f *Fixed) Now() time.Time { return f.T }

// After implements Clock. The returned channel fires immediately so tests
// never wait on real timers.
func (f *Fixed) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.T.Add(d)
	return ch
}

// Advance moves the fixed instant forward.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
