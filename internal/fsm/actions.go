package fsm

import (
	"errors"
	"time"

	"github.com/routeeng/bgpfsm/pkg/bgp"
	"github.com/routeeng/bgpfsm/pkg/log"
)

// actionFn is a table cell's action (spec.md §4.1: "a pair
// (action_fn, default-next-state)"). It may return a next state other
// than defaultNext; the dispatcher always uses the returned value.
type actionFn func(c *Connection, event Event, defaultNext bgp.FSMState) bgp.FSMState

var errInvalidEvent = errors.New("fsm: event invalid for state")

func ceaseCollision() *bgp.Notification {
	return bgp.NewNotification(bgp.NotifCease, bgp.SubcodeConnectionCollisionResolution, nil)
}

func fsmErrorNotification() *bgp.Notification {
	return bgp.NewNotification(bgp.NotifFiniteStateMachine, bgp.SubcodeUnspecific, nil)
}

func holdExpiredNotification() *bgp.Notification {
	return bgp.NewNotification(bgp.NotifHoldTimerExpired, bgp.SubcodeUnspecific, nil)
}

// enter handles Initial/BGP_Start. idleHoldCurrent was seeded to at
// least 1s at Connection creation (spec.md §4.2); the dispatcher's
// onStateChange arms the IdleHoldTimer uniformly for every landing in
// Idle, including this first one.
func enter(c *Connection, _ Event, defaultNext bgp.FSMState) bgp.FSMState {
	return defaultNext
}

// start handles Idle/BGP_Start and is reused by retry: primary initiates
// a non-blocking connect, secondary enables accept (spec.md §4.2).
func start(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	if c.comatose {
		c.comatose = false
	}
	switch c.ordinal {
	case bgp.Primary:
		if c.session.dialer != nil {
			c.session.dialer.Dial(connectContext(), c.session.peerAddress, c)
		}
		return bgp.BGP_FSM_CONNECT
	default:
		return bgp.BGP_FSM_ACTIVE
	}
}

// retry handles ConnectRetry_timer_expired in Connect/Active: close the
// in-flight attempt, post the (unreported) Retry exception, then invoke
// start again (spec.md §4.2).
func retry(c *Connection, event Event, defaultNext bgp.FSMState) bgp.FSMState {
	closeConnection(c)
	c.post(exceptRetry, nil, nil)
	next := start(c, event, defaultNext)
	if c.session != nil {
		c.armHoldRole(roleConnectRetry, c.session.connectRetry, true)
	}
	return next
}

// sendOpen handles TCP_connection_open in Connect/Active: enable reads,
// write the configured OPEN (spec.md §4.2). Wire encoding of OPEN is out
// of scope (spec.md §1); the Session carries whatever raw bytes the
// caller's encoder produced.
func sendOpen(c *Connection, _ Event, defaultNext bgp.FSMState) bgp.FSMState {
	if c.socket == nil {
		return defaultNext
	}
	c.socket.EnableRead()
	if _, err := c.socket.Write(c.session.openPayload); err != nil {
		// One synchronous I/O op per action (spec.md §5): a write
		// failure here surfaces as a deferred TCP_fatal_error/closed
		// event from the socket's own callback path, not inline.
		c.logger.Debug("open write failed", mergeFields(c.fields(), "Err", err))
	}
	c.armHoldRole(roleOpenHold, c.session.openHold, false)
	return defaultNext
}

// failed handles TCP_connection_open_failed in Connect/Active: the
// attempt didn't complete, so only the socket (if any) is closed; the
// ConnectRetryTimer (armed on entry to Connect/Active and by retry) is
// left running (spec.md §4.1).
func failed(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	if c.socket != nil {
		_ = c.socket.Close()
		c.socket = nil
	}
	return c.state
}

// fatal handles TCP_fatal_error in Connect/Active: close and fall to
// Idle (spec.md §4.1 table).
func fatal(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	c.post(exceptTCPError, nil, nil)
	return catchException(c, bgp.BGP_FSM_IDLE)
}

// closedAction handles TCP_connection_closed in OpenSent/OpenConfirm
// (fall to Idle) and Established (terminal, spec.md §7 "any failure
// while Established").
func closedAction(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	c.post(exceptTCPDropped, nil, nil)
	return catchException(c, fallbackTarget(c.state))
}

// fatalOpen handles TCP_fatal_error in OpenSent/OpenConfirm/Established.
func fatalOpen(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	c.post(exceptTCPError, nil, nil)
	return catchException(c, fallbackTarget(c.state))
}

func fallbackTarget(from bgp.FSMState) bgp.FSMState {
	if from == bgp.BGP_FSM_ESTABLISHED {
		return bgp.BGP_FSM_STOPPING
	}
	return bgp.BGP_FSM_IDLE
}

// expireAction handles Hold_Timer_expired in OpenSent/OpenConfirm/
// Established (spec.md §4.1, §4.5). The multiplexed hold-timer slot is
// sitting in the courtesy role whenever a NOTIFICATION has already been
// sent or queued (notificationPending covers the still-queued case;
// sentNotification clears it but leaves holdRole at roleCourtesy for the
// post-send wait) — either way this firing just finalizes the close via
// exitAction rather than posting a second NOTIFICATION.
func expireAction(c *Connection, event Event, defaultNext bgp.FSMState) bgp.FSMState {
	if c.notificationPending || c.holdRole == roleCourtesy {
		return exitAction(c, event, defaultNext)
	}
	c.post(exceptExpired, nil, holdExpiredNotification())
	return catchException(c, fallbackTarget(c.state))
}

// recvOpen handles Receive_OPEN in OpenSent: run collision resolution
// against any sibling in OpenConfirm (spec.md §4.4), else advance
// straight to OpenConfirm with a KEEPALIVE sent.
func recvOpen(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	c.holdInterval, c.keepaliveInterval = negotiate(c.session.openHold, c.openRecv)

	if sib := c.sibling(); sib != nil && sib.state == bgp.BGP_FSM_OPENCONFIRM {
		if isLoser(c.session.routerID, sibPeerIdentifier(sib)) {
			c.session.metrics.Collision()
			c.post(exceptCollision, nil, ceaseCollision())
			return catchException(c, bgp.BGP_FSM_IDLE)
		}
	}

	sendKeepalive(c)
	c.armHoldRole(roleHold, c.holdInterval, false)
	return bgp.BGP_FSM_OPENCONFIRM
}

func sibPeerIdentifier(sib *Connection) uint32 {
	if sib.openRecv == nil {
		return 0
	}
	return sib.openRecv.Identifier
}

// isLoser implements spec.md §3's ordering rule for collision loser: the
// side whose local BGP identifier is numerically less than the peer's
// advertised identifier loses.
func isLoser(localID, peerID uint32) bool {
	return localID < peerID
}

// negotiate implements RFC 4271 §4.2's HoldTime negotiation: the session
// hold time is the minimum of the two peers' advertised values, with
// either side advertising 0 meaning "infinite/disabled" (spec.md §3).
// Grounded on the teacher's own min-of-both rule
// (_examples/osrg-gobgp/pkg/peering/fsm_opensent.go:
// "minHoldTime := min(holdTime, myHoldTime)"), which this package had
// dropped by returning the peer's HoldTime verbatim; keepalive is then
// derived from that minimum, per the same RFC section's 1/3 ratio.
func negotiate(configuredOpenHold time.Duration, open *bgp.BGPOpen) (hold, keepalive time.Duration) {
	if open == nil || open.HoldTime == 0 || configuredOpenHold == 0 {
		return 0, 0
	}
	hold = time.Duration(open.HoldTime) * time.Second
	if configuredOpenHold < hold {
		hold = configuredOpenHold
	}
	keepalive = hold / 3
	return hold, keepalive
}

func sendKeepalive(c *Connection) {
	if c.socket == nil {
		return
	}
	if _, err := c.socket.Write(keepaliveWireBytes); err != nil {
		c.logger.Debug("keepalive write failed", mergeFields(c.fields(), "Err", err))
	}
}

// keepaliveWireBytes is the one message this package ever hardcodes: a
// KEEPALIVE carries no body, so there is no encoding decision to defer
// upstream the way there is for OPEN/NOTIFICATION.
var keepaliveWireBytes = []byte{
	// 16-byte all-ones marker
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	// length 19 (header only), type 4 (KEEPALIVE)
	0x00, 0x13, 0x04,
}

// errorAction handles a message illegal for the current state
// (Receive_KEEPALIVE/UPDATE in OpenSent, Receive_OPEN/UPDATE in
// OpenConfirm, Receive_OPEN in Established): FSM-error NOTIFICATION,
// spec.md §4.1.
func errorAction(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	c.post(exceptFSMError, errInvalidEvent, fsmErrorNotification())
	return catchException(c, fallbackTarget(c.state))
}

// establishAction handles Receive_KEEPALIVE in OpenConfirm (spec.md
// §4.4): snuff any sibling, promote this Connection to primary, move the
// Session to Established, and report.
func establishAction(c *Connection, _ Event, defaultNext bgp.FSMState) bgp.FSMState {
	if sib := c.sibling(); sib != nil {
		sib.throw(exceptDiscard, nil, ceaseCollision(), BGPStop)
	}
	c.stopHold()
	c.session.promote(c)
	c.resetIdleHold(c.session.idleHold)
	c.armKeepalive(c.keepaliveInterval)
	if c.holdInterval > 0 {
		c.armHoldRole(roleHold, c.holdInterval, false)
	}
	c.post(exceptEstablished, nil, nil)
	return defaultNext
}

// sendKeepaliveTick handles KeepAlive_timer_expired in OpenConfirm and
// Established (spec.md §4.1).
func sendKeepaliveTick(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	sendKeepalive(c)
	if c.keepaliveInterval > 0 {
		c.armKeepalive(c.keepaliveInterval)
	}
	return c.state
}

// recharge handles Receive_UPDATE/Receive_KEEPALIVE in Established:
// recharge the HoldTimer and, for UPDATE, forward the payload to the
// Routeing Engine (spec.md §4.1, §9 Open Question: forwarded
// synchronously, back-pressure left to the receiver).
func recharge(c *Connection, event Event, _ bgp.FSMState) bgp.FSMState {
	if c.holdInterval > 0 {
		c.armHoldRole(roleHold, c.holdInterval, false)
	}
	if event == ReceiveUPDATE && c.session != nil {
		c.session.emit(SessionUpdate{Ordinal: c.ordinal, Payload: c.pendingUpdate})
		c.pendingUpdate = nil
	}
	return bgp.BGP_FSM_ESTABLISHED
}

// notificationReceived handles Receive_NOTIFICATION in every state it is
// legal in. The exception (kind NOM_recv) was already posted by
// Connection.OnMessage when the NOTIFICATION was decoded (spec.md §4.6).
func notificationReceived(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	return catchException(c, fallbackTarget(c.state))
}

// stopAction handles BGP_Stop in any state: the administrative/internal
// stop path (spec.md §4.1 "Any | BGP_Stop"). The exception driving this
// was posted by the caller (throw) before raiseEvent was called, except
// for a bare internal stop with no prior post, which defaults to
// Disabled.
func stopAction(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	if c.exception.kind == exceptNone {
		c.post(exceptDisabled, nil, nil)
	}
	return catchException(c, bgp.BGP_FSM_STOPPING)
}

// invalidAction is the default cell for anything spec.md's table leaves
// unlisted: a bug, not a reachable protocol condition (spec.md §4.1
// "Any invalid cell").
func invalidAction(c *Connection, event Event, _ bgp.FSMState) bgp.FSMState {
	c.logger.Warn("invalid event for state", mergeFields(c.fields(), "Event", event.String()))
	c.post(exceptInvalid, errInvalidEvent, fsmErrorNotification())
	return catchException(c, bgp.BGP_FSM_STOPPING)
}

// exitAction terminates the connection. In Stopping it stays Stopping
// (the Connection is destroyed by the I/O layer once its socket work
// finishes, spec.md §3 Lifecycle); from OpenSent/OpenConfirm it is the
// tail end of the courtesy-timer wait after a NOTIFICATION sent while
// not transitioning to Stopping (spec.md §4.5 step 5).
func exitAction(c *Connection, _ Event, _ bgp.FSMState) bgp.FSMState {
	closeConnection(c)
	if c.state == bgp.BGP_FSM_STOPPING {
		return bgp.BGP_FSM_STOPPING
	}
	return bgp.BGP_FSM_IDLE
}

func mergeFields(f log.Fields, k string, v any) log.Fields {
	f[k] = v
	return f
}
