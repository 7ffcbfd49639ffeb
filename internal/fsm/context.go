package fsm

import "context"

// connectContext is the context passed to Dialer.Dial. The FSM itself
// has no per-session cancellation surface (spec.md §1: the FSM does not
// own the listening socket or the connect loop); a real Dialer
// implementation derives its own deadline.
func connectContext() context.Context {
	return context.Background()
}
