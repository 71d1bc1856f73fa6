package provider

import (
	"sync"
	"sync/atomic"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

// Provider is the credential-issuance owner used by the devicesim binary.
// It keeps the ConnectionState, counts references and fans status changes out
// to subscribers such as the health API.
type Provider struct {
	state *core.ConnectionState

	refs atomic.Int32

	mu          sync.RWMutex
	subscribers []func(core.Snapshot)
}

var _ core.Owner = (*Provider)(nil)

func New() *Provider {
	return &Provider{state: core.NewConnectionState()}
}

func (p *Provider) ConnectionState() *core.ConnectionState { return p.state }

// SetIdentity writes the delivered username and password as one pair.
func (p *Provider) SetIdentity(id core.Identity) {
	p.state.SetIdentity(id)
}

// OnStatusChanged logs the new state and notifies subscribers inline.
func (p *Provider) OnStatusChanged() {
	snap := p.state.Snapshot()
	logger.Info("Connect status changed",
		"connected", snap.Connected,
		"username", snap.Identity.Username,
		"has_identity", snap.HasIdentity,
		"changes", snap.Changes)

	p.mu.RLock()
	subs := append([]func(core.Snapshot){}, p.subscribers...)
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Subscribe registers fn to be called after every status change. fn runs on
// the worker that made the change and must return quickly.
func (p *Provider) Subscribe(fn func(core.Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

func (p *Provider) AddRef() { p.refs.Add(1) }

func (p *Provider) Release() {
	if n := p.refs.Add(-1); n < 0 {
		logger.Error("Provider released more times than referenced", "refs", n)
	}
}

// Refs reports the number of outstanding references.
func (p *Provider) Refs() int32 { return p.refs.Load() }
