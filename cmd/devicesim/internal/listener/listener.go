package listener

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

const maxAcceptDelay = time.Second

// ApplyFunc receives the identity of every successful handshake. It runs on
// the listener goroutine before the connection is half-closed.
type ApplyFunc func(id core.Identity)

// Listener accepts one client at a time and runs the credential handshake.
// It depends only on a net.Listener and the handshake options.
type Listener struct {
	ln        net.Listener
	handshake *Handshake
	closed    atomic.Bool

	mu      sync.Mutex
	current net.Conn
}

// Listen binds a TCP socket on all interfaces.
func Listen(port int, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}
	return New(ln, opts), nil
}

// New wraps an existing net.Listener.
func New(ln net.Listener, opts Options) *Listener {
	return &Listener{
		ln:        ln,
		handshake: NewHandshake(opts),
	}
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve runs the accept loop until Close is called or ctx is done, which
// both return nil. Accept failures are logged and retried. A receive failure
// ends the loop with a *ListenerFailure.
func (l *Listener) Serve(ctx context.Context, apply ApplyFunc) error {
	log := logger.Component("listener")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()

	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("Accept failed", "error", &AcceptError{Err: err})
			delay = nextDelay(delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !l.track(conn) {
			conn.Close()
			return nil
		}
		err = l.handle(ctx, conn, apply)
		l.untrack()

		if err != nil {
			if l.closed.Load() {
				return nil
			}
			return &ListenerFailure{Err: err}
		}
	}
}

// handle owns the connection until it returns. Only fatal errors are returned.
func (l *Listener) handle(ctx context.Context, conn net.Conn, apply ApplyFunc) error {
	defer conn.Close()
	log := logger.Component("listener").With("remote_addr", remoteAddr(conn), "session", uuid.NewString())

	id, err := l.handshake.Run(ctx, conn)
	switch {
	case err == nil:
		log.Info("Identity delivered", "username", id.Username)
		apply(id)
	case errors.Is(err, ErrPeerClosed):
		log.Info("Connection closing")
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrTokenTooLong):
		log.Warn("Rejected token", "error", err)
		return nil
	default:
		var recvErr *RecvError
		if errors.As(err, &recvErr) {
			log.Error("Receive failed", "error", err)
			return err
		}
		log.Warn("Handshake failed", "error", err)
		return nil
	}

	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := hc.CloseWrite(); err != nil {
			log.Warn("Shutdown failed", "error", err)
		}
	}
	return nil
}

// Close stops Serve and aborts the connection being serviced, if any.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.ln.Close()
	l.mu.Lock()
	if l.current != nil {
		l.current.Close()
	}
	l.mu.Unlock()
	return err
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return false
	}
	l.current = conn
	return true
}

func (l *Listener) untrack() {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}
