package core

import (
	"context"
	"errors"
)

// Identity is a delivered username/password pair.
// The two fields are always written together.
type Identity struct {
	Username string
	Password string
}

// ErrIdentityNotFound is returned by an IdentityStore when the id is unknown.
var ErrIdentityNotFound = errors.New("identity not found")

// Owner is the credential-issuance component that owns the ConnectionState.
// It is notified after every flip of the connected flag and receives the
// identity written by a successful handshake.
//
// OnStatusChanged runs inline on whichever worker performed the mutation and
// stalls that worker until it returns, so implementations must not block.
type Owner interface {
	OnStatusChanged()
	SetIdentity(id Identity)
	ConnectionState() *ConnectionState

	// AddRef and Release bracket the time the mediator holds the owner.
	AddRef()
	Release()
}

// IdentityStore looks up an identity by the id token a client sends.
// It abstracts away the storage mechanism (static map, file, K8s Secret).
type IdentityStore interface {
	Lookup(ctx context.Context, id string) (Identity, error)
}

// IdentityValidator turns the tokens read on one connection into the
// identity to apply. Arity is the number of tokens collected before Validate.
type IdentityValidator interface {
	Arity() int
	Validate(ctx context.Context, tokens []string) (Identity, error)
}

// Surface is the local toggle control. It never mutates state itself: user
// actions are turned into signals handed to post.
type Surface interface {
	// Start shows the control. It must return once the surface is visible.
	Start(post func(Signal)) error
	// Render updates the labels for the given connected value.
	Render(connected bool)
	// Hide removes the control from view without tearing it down.
	Hide()
	Close() error
}

// SignalKind tags the control messages consumed by the event loop.
type SignalKind int

const (
	SignalToggle SignalKind = iota + 1
	SignalExit
	SignalDevice
)

func (k SignalKind) String() string {
	switch k {
	case SignalToggle:
		return "toggle"
	case SignalExit:
		return "exit"
	case SignalDevice:
		return "device"
	default:
		return "unknown"
	}
}

// DeviceEventKind distinguishes platform device notifications.
type DeviceEventKind string

const (
	DeviceArrival DeviceEventKind = "arrival"
	DeviceRemoval DeviceEventKind = "removal"
)

// DeviceEvent is an observational platform notification. It never changes
// connection state.
type DeviceEvent struct {
	Kind   DeviceEventKind
	Path   string
	Source string
}

// Signal is one control message. Interactive is set on an Exit raised by
// the user closing the surface; Device is set for SignalDevice.
type Signal struct {
	Kind        SignalKind
	Interactive bool
	Device      DeviceEvent
}

func Toggle() Signal { return Signal{Kind: SignalToggle} }

func Exit(interactive bool) Signal {
	return Signal{Kind: SignalExit, Interactive: interactive}
}

func Device(ev DeviceEvent) Signal {
	return Signal{Kind: SignalDevice, Device: ev}
}
