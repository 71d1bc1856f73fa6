package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
)

type Store struct {
	identities map[string]core.Identity
	mu         sync.RWMutex
}

// NewStore creates a memory store from a comma-separated string
// Format: "id=username:password,..."
// Example: "42=alice:s3cret,43=bob:hunter2"
func NewStore(mappingStr string) (*Store, error) {
	identities := make(map[string]core.Identity)
	if strings.TrimSpace(mappingStr) == "" {
		return &Store{identities: identities}, nil
	}

	for _, pair := range strings.Split(mappingStr, ",") {
		id, creds, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid identity mapping: %s", pair)
		}
		user, pass, ok := strings.Cut(creds, ":")
		if !ok {
			return nil, fmt.Errorf("invalid credentials for id %q: expected username:password", id)
		}
		identities[strings.TrimSpace(id)] = core.Identity{Username: user, Password: pass}
	}

	return &Store{identities: identities}, nil
}

func (s *Store) Put(id string, identity core.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[id] = identity
}

func (s *Store) Lookup(ctx context.Context, id string) (core.Identity, error) {
	s.mu.RLock()
	identity, ok := s.identities[id]
	s.mu.RUnlock()

	if !ok {
		return core.Identity{}, fmt.Errorf("id %q: %w", id, core.ErrIdentityNotFound)
	}
	return identity, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}
