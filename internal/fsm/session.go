// Package fsm implements the per-peer BGP-4 FSM: the table-driven
// dispatcher, the Session/Connection data model, collision resolution,
// the NOTIFICATION send sub-protocol and the timer suite described by
// spec.md. It is grounded throughout on
// _examples/osrg-gobgp/pkg/peering and _examples/osrg-gobgp/pkg/server
// (the teacher's two FSM generations) but replaces their goroutine-per-
// state control flow with the literal (state, event) -> (action, next)
// table spec.md §4.1 and §9 call for.
package fsm

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/channels"
	"github.com/google/uuid"

	"github.com/routeeng/bgpfsm/internal/ioiface"
	"github.com/routeeng/bgpfsm/internal/metrics"
	"github.com/routeeng/bgpfsm/pkg/bgp"
	"github.com/routeeng/bgpfsm/pkg/log"
)

// AdminState is the Session's administrative lifecycle (spec.md §3).
type AdminState int

const (
	Disabled AdminState = iota
	Enabled
	Established
	Stopping
)

func (s AdminState) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Enabled:
		return "Enabled"
	case Established:
		return "Established"
	case Stopping:
		return "Stopping"
	default:
		return "unknown"
	}
}

// Config holds exactly the fields spec.md §3 lists for Session, trimmed
// from the teacher's oc.Neighbor/oc.Global (SPEC_FULL.md "Configuration").
// No file/env loader lives here; callers decode whatever config source
// they like into Config and pass it to NewSession.
type Config struct {
	PeerAddress  string
	AllowedModes bgp.AllowedModes
	IdleHold     time.Duration
	ConnectRetry time.Duration
	OpenHold     time.Duration

	// Local OPEN payload fields.
	LocalAS  uint32
	RouterID uint32

	// OpenPayload is the already-encoded OPEN message this Session
	// writes on TCP establishment. Encoding is out of scope (spec.md
	// §1); the caller's encoder produces these bytes.
	OpenPayload []byte

	Dialer   ioiface.Dialer
	Acceptor ioiface.Acceptor
	Logger   log.Logger
}

// SessionEvent is what the dispatcher hands to the Routeing Engine when
// an action posts a reportable exception (spec.md §4.1 step 5, §6
// session_event).
type SessionEvent struct {
	Kind         string
	Notification *bgp.Notification
	Err          error
	Ordinal      bgp.Ordinal
	Stopped      bool
}

// SessionUpdate is a forwarded UPDATE payload (spec.md §6 session_update).
type SessionUpdate struct {
	Ordinal bgp.Ordinal
	Payload any
}

// Session is the logical peering: up to two Connections, the
// administrative lifecycle, and the negotiated intervals mirrored from
// the winning Connection (spec.md §3).
type Session struct {
	mu sync.Mutex
	// lockDepth guards reentrant raiseEvent calls (sibling snuff-out from
	// inside an already-running dispatch). Only ever read/written while
	// mu is held by this goroutine, so a plain int is safe.
	lockDepth int

	peerAddress  string
	allowedModes bgp.AllowedModes
	idleHold     time.Duration
	connectRetry time.Duration
	openHold     time.Duration

	negotiatedHold      time.Duration
	negotiatedKeepalive time.Duration

	adminState AdminState

	connections [2]*Connection

	acceptEnabled bool

	localAS    uint32
	routerID   uint32
	openToSend *bgp.BGPOpen
	openPayload []byte

	dialer   ioiface.Dialer
	acceptor ioiface.Acceptor
	logger   log.Logger
	metrics  *metrics.Session

	// events is the producer side of the Routeing Engine inbox
	// (spec.md §5 "MPSC-style queue external to this spec"), backed by
	// the teacher's own channels.InfiniteChannel
	// (_examples/osrg-gobgp/pkg/peering/definitions.go outgoingCh).
	events *channels.InfiniteChannel
}

// NewSession constructs a disabled Session from cfg. Connections are not
// created until EnableSession runs (spec.md §3 Lifecycle).
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewDefaultLogger()
	}
	s := &Session{
		peerAddress:  cfg.PeerAddress,
		allowedModes: cfg.AllowedModes,
		idleHold:     cfg.IdleHold,
		connectRetry: cfg.ConnectRetry,
		openHold:     cfg.OpenHold,
		adminState:   Disabled,
		localAS:      cfg.LocalAS,
		routerID:     cfg.RouterID,
		dialer:       cfg.Dialer,
		acceptor:     cfg.Acceptor,
		logger:       logger,
		metrics:      metrics.NewSession(cfg.PeerAddress),
		events:       channels.NewInfiniteChannel(),
	}
	s.openToSend = &bgp.BGPOpen{MyAS: cfg.LocalAS, Identifier: cfg.RouterID, HoldTime: uint16(cfg.OpenHold / time.Second)}
	s.openPayload = cfg.OpenPayload
	return s
}

// Events returns the consumer side of the session_event/session_update
// queue. Owned by the caller (spec.md §5): this repo only writes to it.
func (s *Session) Events() <-chan any {
	return s.events.Out()
}

func (s *Session) emit(v any) {
	s.events.In() <- v
}

// PeerAddress returns the Session's unique identity (spec.md §3).
func (s *Session) PeerAddress() string { return s.peerAddress }

// EnableSession runs the administrative "enable" transition: creates the
// Connection(s) this Session's AllowedModes permit and raises BGP_Start
// against each (spec.md §4.1 Initial/BGP_Start row).
func (s *Session) EnableSession() {
	s.mu.Lock()
	if s.adminState == Enabled || s.adminState == Established {
		s.mu.Unlock()
		return
	}
	s.adminState = Enabled

	var created []*Connection
	if s.allowedModes != bgp.AcceptOnly {
		c := s.newConnection(bgp.Primary)
		s.connections[bgp.Primary] = c
		created = append(created, c)
	}
	if s.allowedModes != bgp.ConnectOnly {
		c := s.newConnection(bgp.Secondary)
		s.connections[bgp.Secondary] = c
		created = append(created, c)
	}
	s.mu.Unlock()

	for _, c := range created {
		s.raiseEvent(c, BGPStart)
	}
}

// DisableSession is the administrative "disable" transition: both
// Connections are thrown Disabled with notification (spec.md §4.3
// table, scenario 5).
func (s *Session) DisableSession(notification *bgp.Notification) {
	s.mu.Lock()
	if s.adminState == Disabled {
		s.mu.Unlock()
		return
	}
	s.adminState = Disabled
	conns := []*Connection{s.connections[bgp.Primary], s.connections[bgp.Secondary]}
	s.mu.Unlock()

	for _, c := range conns {
		if c == nil {
			continue
		}
		c.throw(exceptDisabled, nil, notification, BGPStop)
	}
}

func (s *Session) newConnection(ordinal bgp.Ordinal) *Connection {
	return &Connection{
		session:         s,
		ordinal:         ordinal,
		state:           bgp.BGP_FSM_INITIAL,
		traceID:         uuid.New(),
		logger:          s.logger,
		idleHoldCurrent: minIdleHold(s.idleHold),
	}
}

// connection returns the Connection at ordinal, or nil.
func (s *Session) connection(ordinal bgp.Ordinal) *Connection {
	return s.connections[ordinal]
}

// unlink clears ownership of c from its slot (spec.md §3 Lifecycle: "On
// entry to Stopping, the Session releases ownership").
func (s *Session) unlink(c *Connection) {
	if s.connections[c.ordinal] == c {
		s.connections[c.ordinal] = nil
	}
	c.session = nil
}

// setAcceptEnabled mirrors the invariant "accept_enabled is true only
// while the secondary is in Active or OpenSent states" (spec.md §3) out
// to the I/O layer's Acceptor.
func (s *Session) setAcceptEnabled(enabled bool) {
	if s.acceptEnabled == enabled {
		return
	}
	s.acceptEnabled = enabled
	if s.acceptor != nil {
		s.acceptor.SetAcceptEnabled(enabled)
	}
}

// promote makes c the Session's primary (spec.md §4.4 establish:
// make_primary) and moves the Session to Established.
func (s *Session) promote(c *Connection) {
	if c.ordinal != bgp.Primary {
		s.connections[bgp.Primary] = c
		s.connections[bgp.Secondary] = nil
		c.ordinal = bgp.Primary
	}
	s.adminState = Established
	s.negotiatedHold = c.holdInterval
	s.negotiatedKeepalive = c.keepaliveInterval
}

func (s *Session) demoteFromEstablished() {
	if s.adminState == Established {
		s.adminState = Enabled
	}
}

// raiseEvent is the single external entry point (spec.md §4.1
// raise_event contract).
func (s *Session) raiseEvent(c *Connection, event Event) {
	raiseEvent(s, c, event)
}

func minIdleHold(configured time.Duration) time.Duration {
	if configured < time.Second {
		return time.Second
	}
	return configured
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s)", s.peerAddress)
}
