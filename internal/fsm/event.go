package fsm

// Event is one of the 15 RFC 4271 §8.2.1 FSM events (spec.md §4.1).
type Event int

const (
	Null Event = iota
	BGPStart
	BGPStop
	TCPConnectionOpen
	TCPConnectionClosed
	TCPConnectionOpenFailed
	TCPFatalError
	ConnectRetryTimerExpired
	HoldTimerExpired
	KeepAliveTimerExpired
	ReceiveOPEN
	ReceiveKEEPALIVE
	ReceiveUPDATE
	ReceiveNOTIFICATION
	SentNOTIFICATION

	numEvents
)

var eventNames = [numEvents]string{
	Null:                     "Null",
	BGPStart:                 "BGP_Start",
	BGPStop:                  "BGP_Stop",
	TCPConnectionOpen:        "TCP_connection_open",
	TCPConnectionClosed:      "TCP_connection_closed",
	TCPConnectionOpenFailed:  "TCP_connection_open_failed",
	TCPFatalError:            "TCP_fatal_error",
	ConnectRetryTimerExpired: "ConnectRetry_timer_expired",
	HoldTimerExpired:         "Hold_Timer_expired",
	KeepAliveTimerExpired:    "KeepAlive_timer_expired",
	ReceiveOPEN:              "Receive_OPEN",
	ReceiveKEEPALIVE:         "Receive_KEEPALIVE",
	ReceiveUPDATE:            "Receive_UPDATE",
	ReceiveNOTIFICATION:      "Receive_NOTIFICATION",
	SentNOTIFICATION:         "Sent_NOTIFICATION",
}

func (e Event) String() string {
	if e >= 0 && e < numEvents {
		return eventNames[e]
	}
	return "Unknown_event"
}

func (e Event) valid() bool {
	return e >= 0 && e < numEvents
}
