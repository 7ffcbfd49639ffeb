package fsm

import (
	"github.com/routeeng/bgpfsm/pkg/bgp"
)

// beginSendNotification runs the NOTIFICATION send sub-protocol (spec.md
// §4.5) and returns the state the dispatcher should actually transition
// to, which may differ from intendedNext per step 1.
func beginSendNotification(c *Connection, n *bgp.Notification, intendedNext bgp.FSMState) bgp.FSMState {
	next := intendedNext
	if next != bgp.BGP_FSM_STOPPING {
		// Step 1: must not leave the current state until the
		// NOTIFICATION process terminates.
		next = c.state
	}

	// Step 2: partial close.
	if c.socket != nil {
		c.socket.StopReading()
	}

	if c.session != nil {
		c.session.metrics.Notifications(c.ordinal, n, false)
	}

	// Step 3/4: write the NOTIFICATION; no separate flush of earlier
	// writes is done here. This
	// repo has no wire encoder (spec.md §1 non-goal); Data already holds
	// whatever bytes the caller's encoder produced.
	if c.socket == nil {
		return next
	}
	flushed, err := c.socket.WriteNotification(n.Data)
	switch {
	case err != nil:
		// Write failed: an I/O-error event follows via the socket's own
		// callback path; exit will close when it arrives.
		fields := c.fields()
		fields["Err"] = err
		c.logger.Debug("notification write failed", fields)
	case flushed:
		ev := SentNOTIFICATION
		c.deferredEvent = &ev
	default:
		c.notificationPending = true
		interval := courtesyHoldOther
		if next == bgp.BGP_FSM_STOPPING {
			interval = courtesyHoldStopping
		}
		c.armHoldRole(roleCourtesy, interval, false)
	}

	return next
}

// sentNotification is the action for Sent_NOTIFICATION in every state it
// is legal in (OpenSent, OpenConfirm, Stopping): arm the 5s courtesy
// HoldTimer and stay put (spec.md §4.5 steps 5-6).
func sentNotification(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	c.notificationPending = false
	c.armHoldRole(roleCourtesy, courtesyHoldOther, false)
	return c.state
}
