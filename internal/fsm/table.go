package fsm

import "github.com/routeeng/bgpfsm/pkg/bgp"

// cell is one entry of the FSM table: an action and its advisory default
// next state (spec.md §4.1). The action may override next; the
// dispatcher always uses what the action returns.
type cell struct {
	action actionFn
	next   bgp.FSMState
}

const numStates = int(bgp.BGP_FSM_STOPPING) + 1

// table is the 8 states x 15 events grid (spec.md §4.1). Every cell not
// explicitly set below defaults to invalidAction/Stopping — "Any invalid
// cell -> invalid -> FSM-error NOTIFICATION, force Stopping".
var table [numStates][numEvents]cell

func init() {
	for s := 0; s < numStates; s++ {
		for e := 0; e < int(numEvents); e++ {
			table[s][e] = cell{invalidAction, bgp.BGP_FSM_STOPPING}
		}
	}

	// BGP_Stop is legal from every state (spec.md §4.1 "Any | BGP_Stop").
	for s := 0; s < numStates; s++ {
		table[s][BGPStop] = cell{stopAction, bgp.BGP_FSM_STOPPING}
	}

	set := func(state bgp.FSMState, event Event, action actionFn, next bgp.FSMState) {
		table[state][event] = cell{action, next}
	}

	// Initial
	set(bgp.BGP_FSM_INITIAL, BGPStart, enter, bgp.BGP_FSM_IDLE)

	// Idle
	set(bgp.BGP_FSM_IDLE, BGPStart, start, bgp.BGP_FSM_CONNECT)

	// Connect / Active share the same cells (spec.md §4.1 "Connect/Active" rows).
	for _, st := range []bgp.FSMState{bgp.BGP_FSM_CONNECT, bgp.BGP_FSM_ACTIVE} {
		set(st, TCPConnectionOpen, sendOpen, bgp.BGP_FSM_OPENSENT)
		set(st, TCPConnectionOpenFailed, failed, st)
		set(st, TCPFatalError, fatal, bgp.BGP_FSM_IDLE)
		set(st, ConnectRetryTimerExpired, retry, st)
	}

	// OpenSent
	set(bgp.BGP_FSM_OPENSENT, ReceiveOPEN, recvOpen, bgp.BGP_FSM_OPENCONFIRM)
	set(bgp.BGP_FSM_OPENSENT, ReceiveKEEPALIVE, errorAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENSENT, ReceiveUPDATE, errorAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENSENT, ReceiveNOTIFICATION, notificationReceived, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENSENT, TCPConnectionClosed, closedAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENSENT, TCPFatalError, fatalOpen, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENSENT, HoldTimerExpired, expireAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENSENT, SentNOTIFICATION, sentNotification, bgp.BGP_FSM_OPENSENT)

	// OpenConfirm
	set(bgp.BGP_FSM_OPENCONFIRM, ReceiveKEEPALIVE, establishAction, bgp.BGP_FSM_ESTABLISHED)
	set(bgp.BGP_FSM_OPENCONFIRM, ReceiveOPEN, errorAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENCONFIRM, ReceiveUPDATE, errorAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENCONFIRM, ReceiveNOTIFICATION, notificationReceived, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENCONFIRM, TCPConnectionClosed, closedAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENCONFIRM, TCPFatalError, fatalOpen, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENCONFIRM, HoldTimerExpired, expireAction, bgp.BGP_FSM_IDLE)
	set(bgp.BGP_FSM_OPENCONFIRM, KeepAliveTimerExpired, sendKeepaliveTick, bgp.BGP_FSM_OPENCONFIRM)
	set(bgp.BGP_FSM_OPENCONFIRM, SentNOTIFICATION, sentNotification, bgp.BGP_FSM_OPENCONFIRM)

	// Established
	set(bgp.BGP_FSM_ESTABLISHED, ReceiveUPDATE, recharge, bgp.BGP_FSM_ESTABLISHED)
	set(bgp.BGP_FSM_ESTABLISHED, ReceiveKEEPALIVE, recharge, bgp.BGP_FSM_ESTABLISHED)
	set(bgp.BGP_FSM_ESTABLISHED, ReceiveOPEN, errorAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_ESTABLISHED, ReceiveNOTIFICATION, notificationReceived, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_ESTABLISHED, TCPConnectionClosed, closedAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_ESTABLISHED, TCPFatalError, fatalOpen, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_ESTABLISHED, HoldTimerExpired, expireAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_ESTABLISHED, KeepAliveTimerExpired, sendKeepaliveTick, bgp.BGP_FSM_ESTABLISHED)

	// Stopping
	set(bgp.BGP_FSM_STOPPING, SentNOTIFICATION, sentNotification, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_STOPPING, HoldTimerExpired, exitAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_STOPPING, TCPConnectionClosed, exitAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_STOPPING, TCPFatalError, exitAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_STOPPING, TCPConnectionOpenFailed, exitAction, bgp.BGP_FSM_STOPPING)
	set(bgp.BGP_FSM_STOPPING, ConnectRetryTimerExpired, exitAction, bgp.BGP_FSM_STOPPING)

	// Null is always a no-op wherever it's legal to raise (it never is,
	// in practice, but leaving it invalid-by-default is correct per the
	// table's defensive-assertion design, spec.md §9).
}
