// Package metrics instruments the FSM with Prometheus collectors, backed
// by github.com/prometheus/client_golang the way
// _examples/dantte-lp-gobfd's sibling protocol daemon instruments its own
// session state machine (SPEC_FULL.md DOMAIN STACK).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/routeeng/bgpfsm/pkg/bgp"
)

var (
	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bgp_fsm_state",
		Help: "Current FSM state (bgp.FSMState ordinal) per peer and ordinal.",
	}, []string{"peer", "ordinal"})

	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgp_fsm_transitions_total",
		Help: "Total FSM state transitions per peer and ordinal.",
	}, []string{"peer", "ordinal", "from", "to"})

	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgp_fsm_notifications_total",
		Help: "Total NOTIFICATION messages sent or received per peer.",
	}, []string{"peer", "ordinal", "direction", "code"})

	collisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgp_fsm_collisions_total",
		Help: "Total connection collisions resolved per peer.",
	}, []string{"peer"})

	registerOnce sync.Once
)

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(stateGauge, transitionsTotal, notificationsTotal, collisionsTotal)
	})
}

// Session is the per-Session handle into the shared collectors, carrying
// only the peer label so call sites in internal/fsm never format label
// strings themselves.
type Session struct {
	peer string
}

// NewSession registers (once, process-wide) the collectors and returns a
// handle labelled for peer.
func NewSession(peer string) *Session {
	register()
	return &Session{peer: peer}
}

// Transition records a state change and updates the current-state gauge
// for ordinal. Called only from the dispatcher's onStateChange hook.
func (s *Session) Transition(ordinal bgp.Ordinal, from, to bgp.FSMState) {
	ord := ordinal.String()
	transitionsTotal.WithLabelValues(s.peer, ord, from.String(), to.String()).Inc()
	stateGauge.WithLabelValues(s.peer, ord).Set(float64(to))
}

// Notifications records a NOTIFICATION send (received=false) or receipt
// (received=true). n may be nil for exceptions that carry none.
func (s *Session) Notifications(ordinal bgp.Ordinal, n *bgp.Notification, received bool) {
	if n == nil {
		return
	}
	direction := "sent"
	if received {
		direction = "received"
	}
	notificationsTotal.WithLabelValues(s.peer, ordinal.String(), direction, codeLabel(n.Code)).Inc()
}

// Collision records one resolved connection collision.
func (s *Session) Collision() {
	collisionsTotal.WithLabelValues(s.peer).Inc()
}

func codeLabel(code bgp.NotificationErrorCode) string {
	switch code {
	case bgp.NotifMessageHeaderError:
		return "header"
	case bgp.NotifOpenMessageError:
		return "open"
	case bgp.NotifUpdateMessageError:
		return "update"
	case bgp.NotifHoldTimerExpired:
		return "hold-expired"
	case bgp.NotifFiniteStateMachine:
		return "fsm-error"
	case bgp.NotifCease:
		return "cease"
	default:
		return "unknown"
	}
}
