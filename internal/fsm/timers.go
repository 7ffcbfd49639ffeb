package fsm

import (
	"time"

	"github.com/routeeng/bgpfsm/pkg/bgp"
)

// armIdleOrComatose implements spec.md §5's comatose rule: a Connection
// that lands in Idle while its sibling is still in OpenSent/OpenConfirm
// does not arm its own IdleHoldTimer — it goes comatose and waits for
// the sibling to itself fall back to Idle, which then arms (and wakes)
// this Connection's timer. This is what makes both legs of a peering
// always restart together.
func armIdleOrComatose(sess *Session, c *Connection) {
	if sess == nil {
		c.comatose = false
		c.armHoldRole(roleIdleHold, c.idleHoldCurrent, true)
		return
	}
	sib := sess.connection(c.ordinal.Other())
	if sib != nil && (sib.state == bgp.BGP_FSM_OPENSENT || sib.state == bgp.BGP_FSM_OPENCONFIRM) {
		c.comatose = true
		c.stopHold()
		return
	}
	c.comatose = false
	c.armHoldRole(roleIdleHold, c.idleHoldCurrent, true)
	if sib != nil && sib.comatose {
		sib.comatose = false
		sib.armHoldRole(roleIdleHold, sib.idleHoldCurrent, true)
	}
}

// timerRole names which of the five roles spec.md §3/§9 describes is
// currently occupying the multiplexed hold_timer slot. Each role maps to
// the event its fire callback raises (spec.md §4.1's event table draws
// no "IdleHoldTimer_expired" or "OpenHoldTimer_expired" event — those
// roles reuse BGP_Start / Hold_Timer_expired the same way the teacher's
// FSM reuses a single timer channel for several logical timeouts).
type timerRole int

const (
	roleNone timerRole = iota
	roleIdleHold
	roleConnectRetry
	roleOpenHold
	roleHold
	roleCourtesy
)

func (r timerRole) event() Event {
	switch r {
	case roleIdleHold:
		return BGPStart
	case roleConnectRetry:
		return ConnectRetryTimerExpired
	default:
		return HoldTimerExpired
	}
}

const (
	idleHoldMin = 4 * time.Second
	idleHoldMax = 120 * time.Second

	courtesyHoldStopping = 20 * time.Second
	courtesyHoldOther    = 5 * time.Second
)

// backoffIdleHold doubles the Connection's current IdleHoldTimer
// interval, clamped to [4s, 120s] (spec.md §5, §8). Called each time this
// Connection falls back to Idle from an Open* state.
func (c *Connection) backoffIdleHold() {
	next := c.idleHoldCurrent * 2
	if next < idleHoldMin {
		next = idleHoldMin
	}
	if next > idleHoldMax {
		next = idleHoldMax
	}
	c.idleHoldCurrent = next
}

// resetIdleHold restores the Connection's IdleHoldTimer interval to its
// configured (non-backed-off) value. Used when a Connection successfully
// reaches Established, so a later drop starts the backoff fresh.
func (c *Connection) resetIdleHold(configured time.Duration) {
	c.idleHoldCurrent = minIdleHold(configured)
}
