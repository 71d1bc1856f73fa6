package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

// Phase is the loop's view of the toggle state machine:
// Disconnected <-> Connected, and Terminated once Exit is processed.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnected    Phase = "connected"
	PhaseTerminated   Phase = "terminated"
)

// Loop owns the toggle surface and a private mailbox, and turns Toggle
// signals into ConnectionState flips.
type Loop struct {
	owner   core.Owner
	state   *core.ConnectionState
	surface core.Surface
	mutate  sync.Locker
	mailbox *Mailbox

	terminated atomic.Bool
	started    chan struct{}
	startErr   error
	done       chan struct{}
}

// New builds a loop. mutate is the single-writer lock shared with the
// listener; it is held across a flip and its notification.
func New(owner core.Owner, surface core.Surface, mutate sync.Locker) *Loop {
	return &Loop{
		owner:   owner,
		state:   owner.ConnectionState(),
		surface: surface,
		mutate:  mutate,
		mailbox: NewMailbox(),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Post queues a signal. Signals posted after the loop ends are dropped.
func (l *Loop) Post(sig core.Signal) {
	if !l.mailbox.Post(sig) {
		logger.Debug("Signal dropped, event loop terminated", "signal", sig.Kind)
	}
}

// Render refreshes the surface labels after a mutation made outside the
// loop. It is a no-op before the surface is up and after the loop has
// terminated.
func (l *Loop) Render(connected bool) {
	if l.terminated.Load() || !l.isStarted() {
		return
	}
	l.surface.Render(connected)
}

// WaitStarted blocks until Run has started the surface and returns the
// surface's Start error, if any.
func (l *Loop) WaitStarted(ctx context.Context) error {
	select {
	case <-l.started:
		return l.startErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) isStarted() bool {
	select {
	case <-l.started:
		return l.startErr == nil
	default:
		return false
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) Phase() Phase {
	if l.terminated.Load() {
		return PhaseTerminated
	}
	if l.state.Connected() {
		return PhaseConnected
	}
	return PhaseDisconnected
}

// Run shows the surface and processes signals until Exit or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	log := logger.Component("eventloop")
	defer close(l.done)
	defer l.terminated.Store(true)
	defer l.mailbox.Close()

	if err := l.surface.Start(l.Post); err != nil {
		l.startErr = fmt.Errorf("start toggle surface: %w", err)
		close(l.started)
		return l.startErr
	}
	close(l.started)
	defer func() {
		if err := l.surface.Close(); err != nil {
			log.Warn("Surface close failed", "error", err)
		}
	}()
	l.surface.Render(l.state.Connected())

	for {
		sig, err := l.mailbox.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMailboxClosed) {
				log.Info("Event loop stopped", "reason", err)
				return nil
			}
			return err
		}

		switch sig.Kind {
		case core.SignalToggle:
			l.toggle()
		case core.SignalExit:
			if sig.Interactive {
				l.surface.Hide()
			}
			log.Info("Event loop exiting", "interactive", sig.Interactive)
			return nil
		case core.SignalDevice:
			log.Info("Device change", "kind", sig.Device.Kind, "path", sig.Device.Path, "source", sig.Device.Source)
		default:
			log.Warn("Unknown signal", "kind", int(sig.Kind))
		}
	}
}

func (l *Loop) toggle() {
	l.mutate.Lock()
	defer l.mutate.Unlock()

	connected := l.state.Flip()
	l.surface.Render(connected)
	logger.Debug("Toggled connection state", "connected", connected)
	l.owner.OnStatusChanged()
}
