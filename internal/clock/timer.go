// Package clock provides the FSM's one-shot timer abstraction: monotonic,
// cancellable, and optionally jittered on arm. Grounded in two places in
// the examples: the connect-retry jitter in osrg-gobgp's
// pkg/server/fsm.go connectLoop ("(0.75+rand.Float64()*0.25)*tick"), and
// dantte-lp-gobfd's internal/bfd/session.go ApplyJitter, which expresses
// the same RFC-style "reduce by a random 0-25%" rule with math/rand/v2.
package clock

import (
	"math/rand/v2"
	"sync"
	"time"
)

// ApplyJitter reduces interval by a uniformly random amount in [0, 25%),
// per spec.md §5 ("the actual fire time is reduced by a uniform random
// amount in [0, 25%)").
func ApplyJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return interval
	}
	reduction := time.Duration(rand.Int64N(int64(interval) / 4))
	return interval - reduction
}

// Timer is a one-shot, re-armable timer that invokes its callback on its
// own goroutine when it fires. Setting the interval to zero unsets the
// timer (spec.md §5: "this is the wire-level meaning of infinite
// HoldTime").
type Timer struct {
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	armed    bool
}

// NewTimer constructs an unarmed Timer bound to callback. Arm must be
// called to schedule a fire.
func NewTimer(callback func()) *Timer {
	return &Timer{callback: callback}
}

// Arm schedules the timer to fire after interval (reduced by jitter if
// jitter is true). interval <= 0 unsets the timer instead of arming it.
func (t *Timer) Arm(interval time.Duration, jitter bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
		t.armed = false
	}
	if interval <= 0 {
		return
	}
	fireIn := interval
	if jitter {
		fireIn = ApplyJitter(interval)
	}
	t.armed = true
	t.timer = time.AfterFunc(fireIn, func() {
		t.mu.Lock()
		still := t.armed
		t.armed = false
		t.mu.Unlock()
		if still {
			t.callback()
		}
	})
}

// Stop unsets the timer if armed. Safe to call when already unset.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
}

// Armed reports whether the timer currently has a pending fire.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}
