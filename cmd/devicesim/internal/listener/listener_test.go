package listener

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serveResult struct {
	ids  chan core.Identity
	done chan error
}

func startListener(t *testing.T, ln net.Listener, opts Options) (*Listener, *serveResult) {
	t.Helper()
	l := New(ln, opts)
	res := &serveResult{
		ids:  make(chan core.Identity, 8),
		done: make(chan error, 1),
	}
	go func() {
		res.done <- l.Serve(context.Background(), func(id core.Identity) { res.ids <- id })
	}()
	t.Cleanup(func() { l.Close() })
	return l, res
}

func loopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, token string) string {
	t.Helper()
	_, err := conn.Write([]byte(token + "\x00"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

// expectClosed asserts the server sent nothing more and closed its side.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	assert.Equal(t, 0, n)
	assert.Error(t, err)
}

func TestListenerDeliversIdentity(t *testing.T) {
	l, res := startListener(t, loopback(t), Options{})
	conn := dial(t, l.Addr())

	assert.Equal(t, "OK", send(t, conn, "alice"))
	assert.Equal(t, "OK", send(t, conn, "s3cret"))
	expectClosed(t, conn)

	select {
	case id := <-res.ids:
		assert.Equal(t, core.Identity{Username: "alice", Password: "s3cret"}, id)
	case <-time.After(2 * time.Second):
		t.Fatal("identity not delivered")
	}
}

func TestListenerRejectsLongTokenWithoutReply(t *testing.T) {
	l, res := startListener(t, loopback(t), Options{})

	conn := dial(t, l.Addr())
	_, err := conn.Write([]byte(strings.Repeat("x", 60) + "\x00"))
	require.NoError(t, err)
	expectClosed(t, conn)

	// The loop keeps serving after a rejection.
	conn = dial(t, l.Addr())
	assert.Equal(t, "OK", send(t, conn, "bob"))
	assert.Equal(t, "OK", send(t, conn, "pw"))

	id := <-res.ids
	assert.Equal(t, "bob", id.Username)
	assert.Empty(t, res.ids)
}

func TestListenerRejectsMissingTerminator(t *testing.T) {
	l, res := startListener(t, loopback(t), Options{})

	conn := dial(t, l.Addr())
	_, err := conn.Write([]byte("alice"))
	require.NoError(t, err)
	expectClosed(t, conn)

	assert.Empty(t, res.ids)
}

func TestListenerPeerClosedBeforeToken(t *testing.T) {
	l, res := startListener(t, loopback(t), Options{})

	conn := dial(t, l.Addr())
	conn.Close()

	conn = dial(t, l.Addr())
	assert.Equal(t, "OK", send(t, conn, "carol"))
	assert.Equal(t, "OK", send(t, conn, ""))

	id := <-res.ids
	assert.Equal(t, core.Identity{Username: "carol"}, id)
}

type mapStore map[string]core.Identity

func (m mapStore) Lookup(_ context.Context, id string) (core.Identity, error) {
	if v, ok := m[id]; ok {
		return v, nil
	}
	return core.Identity{}, core.ErrIdentityNotFound
}

func TestListenerLookupRetriesOnSameConnection(t *testing.T) {
	store := mapStore{"dev1": {Username: "alice", Password: "s3cret"}}
	l, res := startListener(t, loopback(t), Options{Validator: core.LookupBacked{Store: store}})

	conn := dial(t, l.Addr())
	assert.Equal(t, "USER NOT FOUND", send(t, conn, "dev9"))
	assert.Equal(t, "OK", send(t, conn, "dev1"))
	expectClosed(t, conn)

	id := <-res.ids
	assert.Equal(t, "s3cret", id.Password)
}

func TestListenerCloseStopsServe(t *testing.T) {
	l, res := startListener(t, loopback(t), Options{})
	require.NoError(t, l.Close())

	select {
	case err := <-res.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestListenerContextCancelStopsServe(t *testing.T) {
	l := New(loopback(t), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, func(core.Identity) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

// flakyListener fails the first accepts before handing out real connections.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (f *flakyListener) Accept() (net.Conn, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("too many open files")
	}
	return f.Listener.Accept()
}

func TestListenerContinuesAfterAcceptError(t *testing.T) {
	fl := &flakyListener{Listener: loopback(t)}
	fl.failures.Store(3)
	l, res := startListener(t, fl, Options{})

	conn := dial(t, l.Addr())
	assert.Equal(t, "OK", send(t, conn, "alice"))
	assert.Equal(t, "OK", send(t, conn, "s3cret"))
	assert.Equal(t, "alice", (<-res.ids).Username)
}

type brokenConn struct {
	net.Conn
}

func (brokenConn) Read([]byte) (int, error)    { return 0, errors.New("connection reset by peer") }
func (brokenConn) Write(b []byte) (int, error) { return len(b), nil }
func (brokenConn) Close() error                { return nil }
func (brokenConn) RemoteAddr() net.Addr        { return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000} }

type oneConnListener struct {
	net.Listener
	served atomic.Bool
}

func (o *oneConnListener) Accept() (net.Conn, error) {
	if !o.served.Swap(true) {
		return brokenConn{}, nil
	}
	return o.Listener.Accept()
}

func TestListenerRecvErrorEndsServe(t *testing.T) {
	_, res := startListener(t, &oneConnListener{Listener: loopback(t)}, Options{})

	select {
	case err := <-res.done:
		var failure *ListenerFailure
		require.True(t, errors.As(err, &failure))
		var recvErr *RecvError
		require.True(t, errors.As(err, &recvErr))
		assert.Equal(t, "10.0.0.1:4000", recvErr.Remote)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not fail")
	}
	assert.Empty(t, res.ids)
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, nextDelay(0))
	assert.Equal(t, 10*time.Millisecond, nextDelay(5*time.Millisecond))
	assert.Equal(t, time.Second, nextDelay(800*time.Millisecond))
}

func TestListenBindError(t *testing.T) {
	taken := loopback(t)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	// Binding the wildcard address fails while 127.0.0.1 holds the port on
	// most platforms; skip where the stack allows both.
	l, err := Listen(port, Options{})
	if err == nil {
		l.Close()
		t.Skip("platform allows wildcard bind alongside loopback")
	}
	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, port, bindErr.Port)
}
