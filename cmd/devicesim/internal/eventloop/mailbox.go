package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/emirpasic/gods/lists/singlylinkedlist"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
)

// ErrMailboxClosed is returned by Next once the mailbox is closed and drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO of signals with a single consumer.
// Post never blocks.
type Mailbox struct {
	mu     sync.Mutex
	items  *singlylinkedlist.List
	wake   chan struct{}
	closed bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		items: singlylinkedlist.New(),
		wake:  make(chan struct{}, 1),
	}
}

// Post enqueues sig. It reports false if the mailbox is already closed.
func (m *Mailbox) Post(sig core.Signal) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items.Add(sig)
	m.mu.Unlock()
	m.notify()
	return true
}

// Next blocks until a signal is available, the mailbox is closed and empty,
// or ctx is done.
func (m *Mailbox) Next(ctx context.Context) (core.Signal, error) {
	for {
		m.mu.Lock()
		if !m.items.Empty() {
			v, _ := m.items.Get(0)
			m.items.Remove(0)
			m.mu.Unlock()
			return v.(core.Signal), nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return core.Signal{}, ErrMailboxClosed
		}

		select {
		case <-m.wake:
		case <-ctx.Done():
			return core.Signal{}, ctx.Err()
		}
	}
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Size()
}

// Close stops further posts. Signals already queued are still delivered.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notify()
}

func (m *Mailbox) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
