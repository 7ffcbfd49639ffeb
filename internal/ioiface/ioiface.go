// Package ioiface defines the narrow contract between the FSM and the
// socket/poll layer it does not own (spec.md §1, §6: "TCP socket setup
// and the poll/select loop" is an external collaborator referenced only
// through the interface it presents). The FSM never dials, accepts, or
// polls a file descriptor itself; it calls Socket and Dialer, and the
// poll layer reports completions back through Callbacks.
package ioiface

import (
	"context"
	"net"

	"github.com/routeeng/bgpfsm/pkg/bgp"
)

// Socket is the per-Connection handle the FSM uses once a TCP endpoint
// exists, whether from a completed outbound connect (primary) or an
// accepted inbound connection (secondary). It owns no policy: enabling
// reads, writing bytes and closing are mechanical operations, and every
// outcome is reported asynchronously through Callbacks.
type Socket interface {
	// EnableRead arms read delivery; completions arrive via
	// Callbacks.OnMessage / OnReadClosed / OnFatal.
	EnableRead()

	// StopReading disables further read delivery and discards any
	// buffered-but-undelivered read data. Used by the partial close at
	// the start of the NOTIFICATION send sub-protocol (spec.md §4.5).
	StopReading()

	// Write queues or flushes b. A return of n == len(b) with err == nil
	// does not by itself mean the bytes reached the peer's kernel
	// buffer; callers that need that distinction (the NOTIFICATION
	// sub-protocol) use WriteNotification instead.
	Write(b []byte) (n int, err error)

	// WriteNotification writes a NOTIFICATION payload and reports
	// whether it flushed through to the kernel synchronously (flushed
	// == true) or was queued (flushed == false, drained later via
	// Callbacks.OnNotificationDrained).
	WriteNotification(b []byte) (flushed bool, err error)

	// Close tears down the socket. Idempotent.
	Close() error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Dialer initiates a non-blocking outbound TCP connect for a primary
// Connection. Only the primary ordinal ever calls Dial (spec.md §3).
type Dialer interface {
	Dial(ctx context.Context, remote string, cb Callbacks)
}

// Acceptor hands a freshly-accepted inbound connection to a secondary
// Connection. Gated by the Session's accept_enabled flag (spec.md §3, §5);
// the FSM never listens itself, it only toggles whether accepted
// connections for this peer address are handed off.
type Acceptor interface {
	SetAcceptEnabled(enabled bool)
}

// Callbacks is the southbound interface (spec.md §6) the I/O layer uses
// to deliver completions into the FSM. internal/fsm.Connection implements
// this; the poll layer never inspects FSM state, it only classifies the
// error it observed (soft vs hard, per spec.md §6) and calls the matching
// method.
type Callbacks interface {
	// OnConnect reports the outcome of a Dial. err == nil means TCP is
	// up and local/remote are filled; err != nil has already been
	// classified by the caller into the soft connect-error set or not.
	OnConnect(err error, soft bool, local, remote net.Addr, sock Socket)

	// OnReadClosed reports a soft end-of-connection (remote FIN/RST or a
	// soft read errno, or EOF). Raises TCP_connection_closed.
	OnReadClosed(err error)

	// OnFatal reports a hard I/O error. Raises TCP_fatal_error.
	OnFatal(err error)

	// OnMessage reports a fully-decoded message. kind selects which
	// Receive_* event to raise; payload is *bgp.BGPOpen for MsgOpen,
	// *bgp.Notification for MsgNotification, the decoded UPDATE (handed
	// on unchanged to the Routeing Engine) for MsgUpdate, and nil for
	// MsgKeepalive.
	OnMessage(kind bgp.MsgKind, payload any)

	// OnNotificationDrained reports that a previously-queued
	// NOTIFICATION write has now flushed to the kernel. Raises
	// Sent_NOTIFICATION.
	OnNotificationDrained()
}
