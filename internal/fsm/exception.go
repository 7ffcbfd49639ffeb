package fsm

import (
	"github.com/routeeng/bgpfsm/pkg/bgp"
)

// exceptKind is the taxonomy of reasons a Connection stops or falls back
// to Idle (spec.md §4.3). Grounded on the teacher's FSMStateReasonType
// (_examples/osrg-gobgp/pkg/peering/definitions.go) but trimmed to the
// twelve kinds spec.md §4.3 actually names.
type exceptKind int

const (
	exceptNone exceptKind = iota
	exceptDisabled
	exceptDiscard
	exceptCollision
	exceptNOMRecv
	exceptTCPDropped
	exceptTCPFailed
	exceptTCPError
	exceptFSMError
	exceptExpired
	exceptInvalid
	exceptRetry
	exceptEstablished
)

func (k exceptKind) String() string {
	switch k {
	case exceptNone:
		return "none"
	case exceptDisabled:
		return "Disabled"
	case exceptDiscard:
		return "Discard"
	case exceptCollision:
		return "Collision"
	case exceptNOMRecv:
		return "NOM_recv"
	case exceptTCPDropped:
		return "TCP_dropped"
	case exceptTCPFailed:
		return "TCP_failed"
	case exceptTCPError:
		return "TCP_error"
	case exceptFSMError:
		return "FSM_error"
	case exceptExpired:
		return "Expired"
	case exceptInvalid:
		return "Invalid"
	case exceptRetry:
		return "Retry"
	case exceptEstablished:
		return "Established"
	default:
		return "unknown"
	}
}

// reportable reports whether kind should cross the northbound boundary to
// the Routeing Engine (spec.md §4.1 step 5: "not Discard, not Collision").
// exceptRetry is excluded too: spec.md §4.3's summary table says
// "Reportable: all except Discard and Collision", but §4.2's concrete
// description of retry is explicit — "post Retry exception (not
// reported)" — and a ConnectRetryTimer tick reported upstream on every
// ~120s cycle would spam the Routeing Engine with a routine retry as if
// it were a session-level event. The concrete statement wins (see
// DESIGN.md).
func (k exceptKind) reportable() bool {
	switch k {
	case exceptDiscard, exceptCollision, exceptRetry, exceptNone:
		return false
	default:
		return true
	}
}

// exception is the Connection's pending-exception tuple (spec.md §3):
// (except_kind, error_code, notification_payload?).
type exception struct {
	kind         exceptKind
	err          error
	notification *bgp.Notification
}

// notificationLegal reports whether NOTIFICATION traffic is legal for
// state (spec.md §4.3 post: "If the Connection is not in a state where
// NOTIFICATION traffic is legal (OpenSent/OpenConfirm/Established)").
func notificationLegal(state bgp.FSMState) bool {
	switch state {
	case bgp.BGP_FSM_OPENSENT, bgp.BGP_FSM_OPENCONFIRM, bgp.BGP_FSM_ESTABLISHED:
		return true
	default:
		return false
	}
}

// post sets the Connection's exception slot. If NOTIFICATION traffic is
// not legal in the current state the payload is dropped immediately
// (spec.md §4.3 post).
func (c *Connection) post(kind exceptKind, err error, notification *bgp.Notification) {
	if notification != nil && !notificationLegal(c.state) {
		notification = nil
	}
	c.exception = exception{kind: kind, err: err, notification: notification}
	c.logger.Debug("exception posted", mergeFields(c.fields(), "Kind", kind.String()))
}

// throw posts kind and immediately raises event against connection. Used
// from outside the dispatcher (administrative disable, sibling snuff-out)
// per spec.md §4.3.
func (c *Connection) throw(kind exceptKind, err error, notification *bgp.Notification, event Event) {
	c.post(kind, err, notification)
	c.session.raiseEvent(c, event)
}

// catchException performs the cleanup prescribed by spec.md §4.3 and
// returns the (possibly rewritten) next state. Called from inside action
// functions, never from outside the dispatcher.
func catchException(c *Connection, nextState bgp.FSMState) bgp.FSMState {
	exc := c.exception

	if exc.notification != nil && exc.kind != exceptNOMRecv {
		nextState = beginSendNotification(c, exc.notification, nextState)
	} else {
		closeConnection(c)
	}

	if nextState == bgp.BGP_FSM_STOPPING && exc.kind != exceptDiscard {
		if sib := c.sibling(); sib != nil {
			dup := exc.notification
			if dup != nil {
				cp := *dup
				cp.Data = append([]byte(nil), dup.Data...)
				dup = &cp
			}
			sib.throw(exceptDiscard, nil, dup, BGPStop)
		}
	}

	return nextState
}
