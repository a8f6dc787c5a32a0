package clock

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Clock schedules callbacks. Real wraps package time; tests use
// testutil.ManualClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f on its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
