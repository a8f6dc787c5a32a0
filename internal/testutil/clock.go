package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/planbuilder/internal/clock"
)

// ManualClock is a clock.Clock whose time only moves when the test says so.
//
// Callbacks due after Advance run synchronously on the caller's goroutine,
// in deadline order (ties in registration order). A callback may arm new
// timers; those fire within the same Advance if they fall due.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
	nextID int
}

var _ clock.Clock = (*ManualClock)(nil)

type manualTimer struct {
	c       *ManualClock
	id      int
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// NewManualClock creates a clock at a fixed, arbitrary instant.
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc arms a timer that fires once Advance moves past now+d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &manualTimer{c: c, id: c.nextID, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d and runs every callback that falls due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// nextDue pops the earliest live timer due at or before target and moves
// now to its deadline.
func (c *ManualClock) nextDue(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].id < c.timers[j].id
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	t := c.timers[0]
	t.fired = true
	if t.at.After(c.now) {
		c.now = t.at
	}
	return t
}

// Pending returns how many timers are armed and not yet fired.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Stop implements clock.Timer.
func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
