package core

import (
	"context"
	"fmt"
)

// AlwaysAccept takes a username token and a password token and accepts
// them unconditionally.
type AlwaysAccept struct{}

func (AlwaysAccept) Arity() int { return 2 }

func (AlwaysAccept) Validate(_ context.Context, tokens []string) (Identity, error) {
	if len(tokens) != 2 {
		return Identity{}, fmt.Errorf("expected 2 tokens, got %d", len(tokens))
	}
	return Identity{Username: tokens[0], Password: tokens[1]}, nil
}

// LookupBacked takes a single id token and resolves it through Store.
// An unknown id yields ErrIdentityNotFound.
type LookupBacked struct {
	Store IdentityStore
}

func (LookupBacked) Arity() int { return 1 }

func (v LookupBacked) Validate(ctx context.Context, tokens []string) (Identity, error) {
	if len(tokens) != 1 {
		return Identity{}, fmt.Errorf("expected 1 token, got %d", len(tokens))
	}
	if v.Store == nil {
		return Identity{}, fmt.Errorf("lookup validator has no identity store")
	}
	return v.Store.Lookup(ctx, tokens[0])
}
