package fsm

import (
	"fmt"

	"github.com/routeeng/bgpfsm/pkg/bgp"
	"github.com/routeeng/bgpfsm/pkg/log"
)

// raiseEvent is the single entry point described by spec.md §4.1. sess
// is captured once at entry so that a transition which unlinks c from
// its Session partway through this call (onStateChange, on entry to
// Stopping) does not also lose the Session this call still needs to
// lock/unlock and to emit the final SessionEvent to.
//
// It is also the re-entry point for the sibling snuff-out
// (catchException, establishAction throw a different Connection of the
// same Session while this call's own dispatch loop is still running).
// sess.mu is not reentrant, so sess.lockDepth tracks whether this
// goroutine already holds it; only the outermost call actually
// locks/unlocks. Snuffing never nests more than one level deep: the
// snuffed side's own exception kind is Discard, and catchException
// skips sibling snuff for Discard, so the recursion always bottoms out.
func raiseEvent(sess *Session, c *Connection, event Event) {
	if !event.valid() {
		panic(fmt.Sprintf("fsm: event %d out of range", event))
	}
	if c.state < bgp.BGP_FSM_INITIAL || c.state > bgp.BGP_FSM_STOPPING {
		panic(fmt.Sprintf("fsm: state %d out of range", c.state))
	}

	// Step 2: bounded re-entry via the single deferred_event slot.
	c.fsmActive++
	if c.fsmActive == 2 {
		c.deferredEvent = &event
		c.fsmActive--
		return
	}

	// Step 3: acquire the session mutex, unless c has already been
	// unlinked (a sessionless Stopping Connection runs mutex-free) or
	// this goroutine already holds it (sibling snuff re-entry).
	alreadyLocked := false
	if sess != nil {
		if sess.lockDepth > 0 {
			alreadyLocked = true
		} else {
			sess.mu.Lock()
		}
		sess.lockDepth++
	}

	var pending *SessionEvent

	for {
		cur := c.state
		cell := table[cur][event]
		next := cell.next
		if cell.action != nil {
			next = cell.action(c, event, next)
		}

		if next != cur {
			onStateChange(c, cur, next)
			c.state = next
		}

		if exc := c.exception; exc.kind != exceptNone {
			if exc.kind.reportable() {
				pending = &SessionEvent{
					Kind:         exc.kind.String(),
					Notification: exc.notification,
					Err:          exc.err,
					Ordinal:      c.ordinal,
					Stopped:      c.state == bgp.BGP_FSM_STOPPING,
				}
			}
			c.exception = exception{}
		}

		if c.deferredEvent == nil {
			break
		}
		event = *c.deferredEvent
		c.deferredEvent = nil
	}

	c.fsmActive--

	if pending != nil && sess != nil {
		sess.emit(*pending)
	}

	if sess != nil {
		sess.lockDepth--
		if !alreadyLocked {
			sess.mu.Unlock()
		}
	}
}

// onStateChange reconfigures timers for the new state and, on entry to
// Stopping, unlinks the Connection from its Session (spec.md §4.1 step
// 4: "run on_state_change ... to reconfigure timers and optionally
// unlink from Session on entry to Stopping").
func onStateChange(c *Connection, from, to bgp.FSMState) {
	sess := c.session
	if sess != nil {
		sess.metrics.Transition(c.ordinal, from, to)
		c.logger.Debug("state change", log.Fields{
			"Key":   sess.peerAddress,
			"Ord":   c.ordinal.String(),
			"Trace": c.traceID.String(),
			"From":  from.String(),
			"To":    to.String(),
		})
	}

	switch to {
	case bgp.BGP_FSM_CONNECT, bgp.BGP_FSM_ACTIVE:
		if sess != nil {
			c.armHoldRole(roleConnectRetry, sess.connectRetry, true)
		}
	case bgp.BGP_FSM_IDLE:
		c.stopKeepalive()
		if from == bgp.BGP_FSM_OPENSENT || from == bgp.BGP_FSM_OPENCONFIRM {
			c.backoffIdleHold()
		}
		if sess != nil {
			sess.demoteFromEstablished()
		}
		armIdleOrComatose(sess, c)
	case bgp.BGP_FSM_STOPPING:
		c.stopKeepalive()
		if sess != nil {
			if sess.connections[c.ordinal] == c {
				sess.unlink(c)
			}
		}
	}

	if sess != nil {
		if c.ordinal == bgp.Secondary {
			sess.setAcceptEnabled(to == bgp.BGP_FSM_ACTIVE || to == bgp.BGP_FSM_OPENSENT)
		}
	}
}
