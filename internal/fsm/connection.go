package fsm

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/routeeng/bgpfsm/internal/clock"
	"github.com/routeeng/bgpfsm/internal/ioiface"
	"github.com/routeeng/bgpfsm/pkg/bgp"
	"github.com/routeeng/bgpfsm/pkg/log"
)

// Connection is a single TCP attempt (spec.md §3). It is owned by its
// Session via session.connections[ordinal]; the back-reference to
// session is a weak lookup pointer, nulled on unlinking (spec.md §3
// Lifecycle).
type Connection struct {
	session *Session
	ordinal bgp.Ordinal
	state   bgp.FSMState

	localAddr  net.Addr
	remoteAddr net.Addr

	openRecv *bgp.BGPOpen

	holdInterval      time.Duration
	keepaliveInterval time.Duration

	// holdTimer is multiplexed across IdleHold, ConnectRetry, OpenHold,
	// negotiated Hold and NOTIFICATION-courtesy roles (spec.md §3, §9
	// "Timer multiplexing").
	holdTimer      *clock.Timer
	keepaliveTimer *clock.Timer
	holdRole       timerRole

	exception exception

	notificationPending bool
	comatose             bool
	pendingWrite        bool

	fsmActive     int
	deferredEvent *Event

	// idleHoldCurrent is this Connection's current IdleHoldTimer
	// interval, doubling on each Open*->Idle fallback and clamped to
	// [4s, 120s] (spec.md §5, §8 "IdleHoldTimer interval after back-off").
	idleHoldCurrent time.Duration

	socket ioiface.Socket

	// pendingUpdate holds the most recently delivered UPDATE payload
	// between OnMessage and the Established-state action that forwards
	// it to the Routeing Engine (spec.md §4.1 Established/Receive_UPDATE).
	pendingUpdate any

	traceID uuid.UUID
	logger  log.Logger
}

// Ordinal reports whether this is the outbound-connect (primary) or
// inbound-accept (secondary) leg.
func (c *Connection) Ordinal() bgp.Ordinal { return c.ordinal }

// State reports the Connection's current FSM state.
func (c *Connection) State() bgp.FSMState { return c.state }

// TraceID is the uuid minted at creation, attached to every log line for
// this Connection (SPEC_FULL.md Data Model addendum).
func (c *Connection) TraceID() uuid.UUID { return c.traceID }

// sibling looks up the other ordinal's Connection in the owning Session,
// or nil if there is none or this Connection has been unlinked
// (spec.md §9 "Sibling pointer").
func (c *Connection) sibling() *Connection {
	if c.session == nil {
		return nil
	}
	return c.session.connection(c.ordinal.Other())
}

func (c *Connection) fields() log.Fields {
	addr := ""
	if c.session != nil {
		addr = c.session.peerAddress
	}
	return log.Fields{
		"Key":   addr,
		"State": c.state.String(),
		"Ord":   c.ordinal.String(),
		"Trace": c.traceID.String(),
	}
}

func (c *Connection) ensureTimers() {
	if c.holdTimer == nil {
		c.holdTimer = clock.NewTimer(func() { c.session.raiseEvent(c, c.holdRole.event()) })
	}
	if c.keepaliveTimer == nil {
		c.keepaliveTimer = clock.NewTimer(func() { c.session.raiseEvent(c, KeepAliveTimerExpired) })
	}
}

// armHoldRole arms the multiplexed hold-timer slot under role, which
// determines which event fires the callback raises (timers.go). jitter
// reduces the fire time by a uniform [0,25%) amount per spec.md §5.
func (c *Connection) armHoldRole(role timerRole, interval time.Duration, jitter bool) {
	c.ensureTimers()
	c.holdRole = role
	c.holdTimer.Arm(interval, jitter)
}

func (c *Connection) stopHold() {
	c.ensureTimers()
	c.holdRole = roleNone
	c.holdTimer.Stop()
}

func (c *Connection) armKeepalive(interval time.Duration) {
	c.ensureTimers()
	c.keepaliveTimer.Arm(interval, false)
}

func (c *Connection) stopKeepalive() {
	c.ensureTimers()
	c.keepaliveTimer.Stop()
}

// closeConnection performs a full close: stop both timers, close the
// socket if one exists, and reset read/write flags. Does not touch
// Session ownership (spec.md §3 Lifecycle: unlinking happens on entry to
// Stopping, separately, in onStateChange).
func closeConnection(c *Connection) {
	c.stopHold()
	c.stopKeepalive()
	if c.socket != nil {
		_ = c.socket.Close()
		c.socket = nil
	}
	c.notificationPending = false
	c.pendingWrite = false
}

// OnConnect implements ioiface.Callbacks (southbound interface, spec.md
// §6 io_connect_completed).
func (c *Connection) OnConnect(err error, soft bool, local, remote net.Addr, sock Socket) {
	if err == nil {
		c.socket = sock
		c.localAddr, c.remoteAddr = local, remote
		c.session.raiseEvent(c, TCPConnectionOpen)
		return
	}
	if soft {
		c.session.raiseEvent(c, TCPConnectionOpenFailed)
	} else {
		c.session.raiseEvent(c, TCPFatalError)
	}
}

// OnReadClosed implements ioiface.Callbacks (io_read_closed).
func (c *Connection) OnReadClosed(err error) {
	c.session.raiseEvent(c, TCPConnectionClosed)
}

// OnFatal implements ioiface.Callbacks (io_fatal).
func (c *Connection) OnFatal(err error) {
	c.post(exceptTCPError, err, nil)
	c.session.raiseEvent(c, TCPFatalError)
}

// OnMessage implements ioiface.Callbacks (io_read_delivered).
func (c *Connection) OnMessage(kind bgp.MsgKind, payload any) {
	switch kind {
	case bgp.MsgOpen:
		c.openRecv, _ = payload.(*bgp.BGPOpen)
		c.session.raiseEvent(c, ReceiveOPEN)
	case bgp.MsgKeepalive:
		c.session.raiseEvent(c, ReceiveKEEPALIVE)
	case bgp.MsgUpdate:
		c.pendingUpdate = payload
		c.session.raiseEvent(c, ReceiveUPDATE)
	case bgp.MsgNotification:
		if n, ok := payload.(*bgp.Notification); ok {
			c.post(exceptNOMRecv, nil, n)
			if c.session != nil {
				c.session.metrics.Notifications(c.ordinal, n, true)
			}
		}
		c.session.raiseEvent(c, ReceiveNOTIFICATION)
	}
}

// OnNotificationDrained implements ioiface.Callbacks
// (io_write_drained_notification).
func (c *Connection) OnNotificationDrained() {
	c.session.raiseEvent(c, SentNOTIFICATION)
}

// Socket is an alias used only so ioiface.Callbacks' OnConnect signature
// does not force every caller in this package to import ioiface
// directly; it is exactly ioiface.Socket.
type Socket = ioiface.Socket
