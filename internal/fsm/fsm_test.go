package fsm

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeeng/bgpfsm/internal/ioiface"
	"github.com/routeeng/bgpfsm/pkg/bgp"
	"github.com/routeeng/bgpfsm/pkg/log"
)

// dummyAddr is a minimal net.Addr for tests that never actually dial a
// socket (spec.md §1: TCP setup is an external collaborator).
type dummyAddr struct{ addr string }

func (d dummyAddr) Network() string { return "tcp" }
func (d dummyAddr) String() string  { return d.addr }

// fakeSocket is the teacher's own MockConnection idiom
// (_examples/osrg-gobgp/pkg/peering/fsm_test.go) trimmed to
// ioiface.Socket: it records writes instead of doing real I/O.
type fakeSocket struct {
	writes     [][]byte
	notifs     [][]byte
	closed     bool
	writeErr   error
	flushNotif bool
}

func newFakeSocket() *fakeSocket { return &fakeSocket{flushNotif: true} }

func (f *fakeSocket) EnableRead()  {}
func (f *fakeSocket) StopReading() {}
func (f *fakeSocket) Write(b []byte) (int, error) {
	f.writes = append(f.writes, b)
	return len(b), f.writeErr
}
func (f *fakeSocket) WriteNotification(b []byte) (bool, error) {
	f.notifs = append(f.notifs, b)
	return f.flushNotif, nil
}
func (f *fakeSocket) Close() error        { f.closed = true; return nil }
func (f *fakeSocket) LocalAddr() net.Addr { return dummyAddr{"10.0.0.1:179"} }
func (f *fakeSocket) RemoteAddr() net.Addr { return dummyAddr{"192.0.2.1:179"} }

type fakeDialer struct {
	calls  int
	lastCB ioiface.Callbacks
}

func (d *fakeDialer) Dial(_ context.Context, _ string, cb ioiface.Callbacks) {
	d.calls++
	d.lastCB = cb
}

type fakeAcceptor struct {
	enabled []bool
}

func (a *fakeAcceptor) SetAcceptEnabled(enabled bool) {
	a.enabled = append(a.enabled, enabled)
}

func testConfig(mode bgp.AllowedModes, dialer *fakeDialer, acceptor *fakeAcceptor) Config {
	return Config{
		PeerAddress:  "192.0.2.1",
		AllowedModes: mode,
		IdleHold:     time.Second,
		ConnectRetry: 120 * time.Second,
		OpenHold:     240 * time.Second,
		RouterID:     0x01010101,
		LocalAS:      65001,
		OpenPayload:  []byte("OPEN"),
		Dialer:       dialer,
		Acceptor:     acceptor,
	}
}

func testConfigWithLogger(mode bgp.AllowedModes, dialer *fakeDialer, acceptor *fakeAcceptor, logger log.Logger) Config {
	cfg := testConfig(mode, dialer, acceptor)
	cfg.Logger = logger
	return cfg
}

// fireIdle simulates the IdleHoldTimer expiry (spec.md §4.2) without
// waiting on a real timer: it raises BGP_Start directly against c, the
// same event the timer callback would raise.
func fireIdle(s *Session, c *Connection) {
	s.raiseEvent(c, BGPStart)
}

func drainEvents(s *Session) {
	for {
		select {
		case <-s.Events():
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func TestHappyPathConnectOnly(t *testing.T) {
	dialer := &fakeDialer{}
	s := NewSession(testConfig(bgp.ConnectOnly, dialer, nil))
	s.EnableSession()

	primary := s.connection(bgp.Primary)
	require.NotNil(t, primary)
	assert.Nil(t, s.connection(bgp.Secondary))
	assert.Equal(t, bgp.BGP_FSM_IDLE, primary.state)

	fireIdle(s, primary)
	assert.Equal(t, bgp.BGP_FSM_CONNECT, primary.state)
	assert.Equal(t, 1, dialer.calls)

	sock := newFakeSocket()
	dialer.lastCB.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, sock)
	assert.Equal(t, bgp.BGP_FSM_OPENSENT, primary.state)
	require.Len(t, sock.writes, 1)

	primary.OnMessage(bgp.MsgOpen, &bgp.BGPOpen{Identifier: 0x02020202, HoldTime: 90})
	assert.Equal(t, bgp.BGP_FSM_OPENCONFIRM, primary.state)
	require.Len(t, sock.writes, 2) // OPEN then KEEPALIVE

	primary.OnMessage(bgp.MsgKeepalive, nil)
	assert.Equal(t, bgp.BGP_FSM_ESTABLISHED, primary.state)
	assert.Equal(t, Established, s.adminState)

	select {
	case ev := <-s.Events():
		se, ok := ev.(SessionEvent)
		require.True(t, ok)
		assert.Equal(t, "Established", se.Kind)
		assert.False(t, se.Stopped)
	case <-time.After(time.Second):
		t.Fatal("expected a session event")
	}
}

// TestStateChangesAreLogged uses this package's mock logger
// (pkg/log/test_logger.go, adapted from the teacher's own idiom to also
// capture Fields) to assert that every transition on the happy path (five
// state changes from Initial to Established, with the Established
// exception post logged just before the last one) is captured at Debug
// level (dispatch.go's onStateChange), each line tagged with this
// Connection's traceID, not merely that no panic occurs.
func TestStateChangesAreLogged(t *testing.T) {
	dialer := &fakeDialer{}
	tl := log.NewTestLogger()
	s := NewSession(testConfigWithLogger(bgp.ConnectOnly, dialer, nil, tl))
	s.EnableSession()
	primary := s.connection(bgp.Primary)

	fireIdle(s, primary)
	sock := newFakeSocket()
	dialer.lastCB.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, sock)
	primary.OnMessage(bgp.MsgOpen, &bgp.BGPOpen{Identifier: 0x02020202, HoldTime: 90})
	primary.OnMessage(bgp.MsgKeepalive, nil)
	require.Equal(t, bgp.BGP_FSM_ESTABLISHED, primary.state)

	require.Len(t, tl.Messages["debug"], 6)
	assert.Equal(t, "state change", tl.Messages["debug"][0])
	assert.Equal(t, "state change", tl.Messages["debug"][5])

	byTrace := tl.ByTrace(primary.TraceID().String())
	require.Len(t, byTrace, 6)
	assert.Equal(t, bgp.BGP_FSM_ESTABLISHED.String(), byTrace[5].Fields["To"])
}

func TestCollisionLoserFallsBackWinnerEstablishes(t *testing.T) {
	dialer := &fakeDialer{}
	acceptor := &fakeAcceptor{}
	s := NewSession(testConfig(bgp.Both, dialer, acceptor))
	s.EnableSession()

	primary := s.connection(bgp.Primary)
	secondary := s.connection(bgp.Secondary)

	fireIdle(s, primary)
	fireIdle(s, secondary)
	assert.Equal(t, bgp.BGP_FSM_CONNECT, primary.state)
	assert.Equal(t, bgp.BGP_FSM_ACTIVE, secondary.state)

	primSock, secSock := newFakeSocket(), newFakeSocket()
	secondary.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, secSock)
	dialer.lastCB.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, primSock)
	require.Equal(t, bgp.BGP_FSM_OPENSENT, secondary.state)
	require.Equal(t, bgp.BGP_FSM_OPENSENT, primary.state)

	// Secondary's OPEN is processed first and wins the race to OpenConfirm.
	secondary.OnMessage(bgp.MsgOpen, &bgp.BGPOpen{Identifier: 0x02020202, HoldTime: 90})
	require.Equal(t, bgp.BGP_FSM_OPENCONFIRM, secondary.state)

	// Primary's local id (0x01010101) < peer id (0x02020202): primary loses.
	primary.OnMessage(bgp.MsgOpen, &bgp.BGPOpen{Identifier: 0x02020202, HoldTime: 90})
	require.Len(t, primSock.notifs, 1)

	secondary.OnMessage(bgp.MsgKeepalive, nil)
	assert.Equal(t, bgp.BGP_FSM_ESTABLISHED, secondary.state)
	assert.Equal(t, bgp.Primary, secondary.ordinal)
	assert.Same(t, secondary, s.connection(bgp.Primary))
}

func TestConnectRefusedThenRetry(t *testing.T) {
	dialer := &fakeDialer{}
	s := NewSession(testConfig(bgp.ConnectOnly, dialer, nil))
	s.EnableSession()
	primary := s.connection(bgp.Primary)
	fireIdle(s, primary)
	require.Equal(t, bgp.BGP_FSM_CONNECT, primary.state)

	dialer.lastCB.OnConnect(errors.New("connection refused"), true, nil, nil, nil)
	assert.Equal(t, bgp.BGP_FSM_CONNECT, primary.state)

	s.raiseEvent(primary, ConnectRetryTimerExpired)
	assert.Equal(t, bgp.BGP_FSM_CONNECT, primary.state)
	assert.Equal(t, 2, dialer.calls)
}

func TestEstablishedPeerDropTerminatesSession(t *testing.T) {
	dialer := &fakeDialer{}
	s := NewSession(testConfig(bgp.ConnectOnly, dialer, nil))
	s.EnableSession()
	primary := s.connection(bgp.Primary)
	fireIdle(s, primary)
	sock := newFakeSocket()
	dialer.lastCB.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, sock)
	primary.OnMessage(bgp.MsgOpen, &bgp.BGPOpen{Identifier: 0x02020202, HoldTime: 90})
	primary.OnMessage(bgp.MsgKeepalive, nil)
	require.Equal(t, bgp.BGP_FSM_ESTABLISHED, primary.state)
	drainEvents(s)

	primary.OnReadClosed(nil)
	assert.Equal(t, bgp.BGP_FSM_STOPPING, primary.state)
	assert.Nil(t, s.connection(bgp.Primary))

	select {
	case ev := <-s.Events():
		se := ev.(SessionEvent)
		assert.Equal(t, "TCP_dropped", se.Kind)
		assert.True(t, se.Stopped)
	case <-time.After(time.Second):
		t.Fatal("expected a session event")
	}
}

func TestAdministrativeDisableMidOpenSentSnuffsSibling(t *testing.T) {
	dialer := &fakeDialer{}
	acceptor := &fakeAcceptor{}
	s := NewSession(testConfig(bgp.Both, dialer, acceptor))
	s.EnableSession()
	primary := s.connection(bgp.Primary)
	secondary := s.connection(bgp.Secondary)
	fireIdle(s, primary)
	fireIdle(s, secondary)

	primSock, secSock := newFakeSocket(), newFakeSocket()
	dialer.lastCB.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, primSock)
	secondary.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, secSock)
	require.Equal(t, bgp.BGP_FSM_OPENSENT, primary.state)
	require.Equal(t, bgp.BGP_FSM_OPENSENT, secondary.state)

	s.DisableSession(bgp.NewNotification(bgp.NotifCease, bgp.SubcodeAdministrativeShutdown, nil))

	require.Len(t, primSock.notifs, 1)
	require.Len(t, secSock.notifs, 1)
	assert.Nil(t, s.connection(bgp.Primary))
	assert.Nil(t, s.connection(bgp.Secondary))
}

func TestVexatiousPeerIdleHoldBackoffClamps(t *testing.T) {
	dialer := &fakeDialer{}
	s := NewSession(testConfig(bgp.ConnectOnly, dialer, nil))
	s.EnableSession()
	primary := s.connection(bgp.Primary)

	want := []time.Duration{4, 8, 16, 32, 64, 120}
	for _, w := range want {
		fireIdle(s, primary)
		sock := newFakeSocket()
		dialer.lastCB.OnConnect(nil, false, dummyAddr{"l"}, dummyAddr{"r"}, sock)
		require.Equal(t, bgp.BGP_FSM_OPENSENT, primary.state)

		// Receive_KEEPALIVE is illegal in OpenSent: errorAction posts an
		// FSM-error NOTIFICATION, which this fakeSocket flushes
		// synchronously, landing in the 5s courtesy wait still inside
		// OpenSent (spec.md §4.5 step 5).
		s.raiseEvent(primary, ReceiveKEEPALIVE)
		require.Equal(t, bgp.BGP_FSM_OPENSENT, primary.state)

		// Simulate the courtesy HoldTimer firing: exit closes and falls
		// back to Idle, doubling the backoff.
		s.raiseEvent(primary, HoldTimerExpired)
		require.Equal(t, bgp.BGP_FSM_IDLE, primary.state)
		assert.Equal(t, w*time.Second, primary.idleHoldCurrent, "backoff step for want=%s", w)
	}
}
