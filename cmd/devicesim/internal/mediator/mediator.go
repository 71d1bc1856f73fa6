package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/eventloop"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/listener"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

var (
	// ErrNotInitialized is returned by operations that need a running mediator.
	ErrNotInitialized = errors.New("mediator not initialized")
	// ErrAlreadyInitialized is returned by Initialize before Close was called.
	ErrAlreadyInitialized = errors.New("mediator already initialized")
)

// Config describes the sockets the mediator opens.
type Config struct {
	Port         int
	Handshake    listener.Options
	DatagramPort int // 0 disables the UDP trigger
}

// Mediator serializes every mutation of the owner's ConnectionState coming
// from the listener worker and the event-loop worker.
type Mediator struct {
	cfg Config

	// mutate is the single-writer lock. It is held across a flip and the
	// OnStatusChanged call that follows it.
	mutate sync.Mutex

	lifecycle sync.Mutex
	owner     core.Owner
	loop      *eventloop.Loop
	ln        *listener.Listener
	dg        *listener.DatagramTrigger
	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup

	failures chan error
}

func New(cfg Config) *Mediator {
	return &Mediator{
		cfg:      cfg,
		failures: make(chan error, 4),
	}
}

// Initialize takes a reference on owner, binds the listener, starts the
// event loop and waits for its surface to come up, then starts the listener
// workers. On error the reference is dropped again.
func (m *Mediator) Initialize(ctx context.Context, owner core.Owner, surface core.Surface) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.ln != nil {
		return ErrAlreadyInitialized
	}
	owner.AddRef()

	ln, err := listener.Listen(m.cfg.Port, m.cfg.Handshake)
	if err != nil {
		owner.Release()
		return err
	}

	var dg *listener.DatagramTrigger
	if m.cfg.DatagramPort > 0 {
		dg, err = listener.ListenDatagram(m.cfg.DatagramPort, m.cfg.Handshake.BufferSize)
		if err != nil {
			ln.Close()
			owner.Release()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	loop := eventloop.New(owner, surface, &m.mutate)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := loop.Run(runCtx); err != nil {
			logger.Error("Event loop failed", "error", err)
		}
	}()

	// The surface must be up before any worker can render on it or a user
	// can act on it.
	if err := loop.WaitStarted(ctx); err != nil {
		cancel()
		ln.Close()
		if dg != nil {
			dg.Close()
		}
		m.wg.Wait()
		owner.Release()
		return err
	}

	m.owner = owner
	m.ctx, m.cancel = runCtx, cancel
	m.ln = ln
	m.dg = dg
	m.loop = loop

	m.serve(runCtx, ln)
	if dg != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := dg.Serve(runCtx, func() { m.Post(core.Toggle()) }); err != nil {
				m.report(err)
			}
		}()
	}

	logger.Info("Mediator initialized", "port", m.cfg.Port, "addr", ln.Addr().String(), "datagram_port", m.cfg.DatagramPort)
	return nil
}

func (m *Mediator) serve(ctx context.Context, ln *listener.Listener) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := ln.Serve(ctx, m.deliver); err != nil {
			m.report(err)
		}
	}()
}

// RestartListener rebinds the TCP listener after a failure.
func (m *Mediator) RestartListener() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.owner == nil || m.ctx == nil {
		return ErrNotInitialized
	}
	if m.ctx.Err() != nil {
		return fmt.Errorf("restart listener: %w", m.ctx.Err())
	}
	if m.ln != nil {
		m.ln.Close()
	}
	ln, err := listener.Listen(m.cfg.Port, m.cfg.Handshake)
	if err != nil {
		return err
	}
	m.ln = ln
	m.serve(m.ctx, ln)
	logger.Info("Listener restarted", "addr", ln.Addr().String())
	return nil
}

func (m *Mediator) report(err error) {
	logger.Error("Listener worker stopped", "error", err)
	select {
	case m.failures <- err:
	default:
		logger.Warn("Failure dropped, channel full", "error", err)
	}
}

// Failures delivers *listener.ListenerFailure values from the workers.
func (m *Mediator) Failures() <-chan error { return m.failures }

// deliver applies a handshake result: identity first, then the connected
// flag. If already connected the flag goes false then true so the owner
// sees one edge per delivery.
func (m *Mediator) deliver(id core.Identity) {
	m.mutate.Lock()
	defer m.mutate.Unlock()

	owner := m.currentOwner()
	if owner == nil {
		return
	}
	st := owner.ConnectionState()
	owner.SetIdentity(id)

	if st.Connected() {
		st.SetConnected(false)
		owner.OnStatusChanged()
	}
	st.SetConnected(true)
	owner.OnStatusChanged()

	if loop := m.currentLoop(); loop != nil {
		loop.Render(true)
	}
}

// Post queues a control signal on the event loop.
func (m *Mediator) Post(sig core.Signal) {
	if loop := m.currentLoop(); loop != nil {
		loop.Post(sig)
	}
}

// GetConnectedStatus is a non-blocking snapshot read of the connected flag.
func (m *Mediator) GetConnectedStatus() bool {
	owner := m.currentOwner()
	if owner == nil {
		return false
	}
	return owner.ConnectionState().Connected()
}

// Snapshot returns the current state, or a zero snapshot before Initialize.
func (m *Mediator) Snapshot() core.Snapshot {
	owner := m.currentOwner()
	if owner == nil {
		return core.Snapshot{}
	}
	return owner.ConnectionState().Snapshot()
}

// Phase reports the event loop state.
func (m *Mediator) Phase() eventloop.Phase {
	if loop := m.currentLoop(); loop != nil {
		return loop.Phase()
	}
	return eventloop.PhaseTerminated
}

// ListenAddr is the bound TCP address, useful when Port is 0.
func (m *Mediator) ListenAddr() string {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

// DatagramAddr is the bound UDP address, or "" when disabled.
func (m *Mediator) DatagramAddr() string {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.dg == nil {
		return ""
	}
	return m.dg.Addr().String()
}

// Close posts Exit to the event loop, stops the listeners, waits for the
// workers and releases the owner. Calling it twice is harmless.
func (m *Mediator) Close() error {
	m.lifecycle.Lock()
	loop, ln, dg, cancel := m.loop, m.ln, m.dg, m.cancel
	m.lifecycle.Unlock()

	if loop != nil {
		loop.Post(core.Exit(false))
	}
	if ln != nil {
		ln.Close()
	}
	if dg != nil {
		dg.Close()
	}
	if loop != nil {
		<-loop.Done()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.ln, m.dg, m.loop, m.cancel = nil, nil, nil, nil
	if m.owner != nil {
		m.owner.Release()
		m.owner = nil
	}
	return nil
}

func (m *Mediator) currentOwner() core.Owner {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.owner
}

func (m *Mediator) currentLoop() *eventloop.Loop {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.loop
}
