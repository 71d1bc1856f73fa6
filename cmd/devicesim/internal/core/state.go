package core

import "sync"

// Snapshot is a point-in-time copy of ConnectionState.
type Snapshot struct {
	Connected   bool
	HasIdentity bool
	Identity    Identity
	// Changes counts every write to the connected flag.
	Changes uint64
}

// ConnectionState holds the connected flag and the identity it guards.
// Use the provided methods to mutate; callers should never take the lock directly.
type ConnectionState struct {
	mu        sync.RWMutex
	connected bool
	identity  *Identity
	changes   uint64
}

// NewConnectionState constructs a disconnected state with no identity.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{}
}

// Connected is a non-blocking read of the current flag. It may race with an
// in-flight toggle and is only a point-in-time answer.
func (s *ConnectionState) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetConnected writes the flag and returns the new value.
func (s *ConnectionState) SetConnected(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
	s.changes++
	return v
}

// Flip inverts the flag and returns the new value.
func (s *ConnectionState) Flip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = !s.connected
	s.changes++
	return s.connected
}

// SetIdentity stores username and password as one write.
func (s *ConnectionState) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := id
	s.identity = &cp
}

// Identity returns the last delivered identity, if any.
func (s *ConnectionState) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Snapshot returns a copy safe to retain without locking.
func (s *ConnectionState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Connected: s.connected,
		Changes:   s.changes,
	}
	if s.identity != nil {
		snap.HasIdentity = true
		snap.Identity = *s.identity
	}
	return snap
}

// StatusLabel is the surface title for a connected value.
func StatusLabel(connected bool) string {
	if connected {
		return "Connected"
	}
	return "Disconnected"
}

// ActionLabel is the toggle control caption for a connected value.
func ActionLabel(connected bool) string {
	if connected {
		return "Press to disconnect"
	}
	return "Press to connect"
}
