package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStateDefaults(t *testing.T) {
	s := NewConnectionState()

	assert.False(t, s.Connected())
	_, ok := s.Identity()
	assert.False(t, ok)
	assert.Equal(t, Snapshot{}, s.Snapshot())
}

func TestConnectionStateFlip(t *testing.T) {
	s := NewConnectionState()

	assert.True(t, s.Flip())
	assert.False(t, s.Flip())
	assert.True(t, s.SetConnected(true))
	assert.Equal(t, uint64(3), s.Snapshot().Changes)
}

func TestConnectionStateIdentityIsCopied(t *testing.T) {
	s := NewConnectionState()
	id := Identity{Username: "alice", Password: "s3cret"}
	s.SetIdentity(id)
	id.Password = "changed"

	got, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "s3cret", got.Password)

	snap := s.Snapshot()
	assert.True(t, snap.HasIdentity)
	assert.Equal(t, Identity{Username: "alice", Password: "s3cret"}, snap.Identity)
}

func TestConnectionStatePairNeverTorn(t *testing.T) {
	s := NewConnectionState()
	pairs := []Identity{{"a", "a-pass"}, {"b", "b-pass"}}

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func(p Identity) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.SetIdentity(p)
			}
		}(p)
	}
	for i := 0; i < 1000; i++ {
		if id, ok := s.Identity(); ok {
			assert.Equal(t, id.Username+"-pass", id.Password)
		}
	}
	wg.Wait()
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Connected", StatusLabel(true))
	assert.Equal(t, "Disconnected", StatusLabel(false))
	assert.Equal(t, "Press to disconnect", ActionLabel(true))
	assert.Equal(t, "Press to connect", ActionLabel(false))
}

func TestSignalConstructors(t *testing.T) {
	assert.Equal(t, SignalToggle, Toggle().Kind)
	assert.True(t, Exit(true).Interactive)
	assert.False(t, Exit(false).Interactive)

	ev := DeviceEvent{Kind: DeviceArrival, Path: "/org/bluez/hci0/dev_00"}
	sig := Device(ev)
	assert.Equal(t, SignalDevice, sig.Kind)
	assert.Equal(t, ev, sig.Device)
	assert.Equal(t, "device", sig.Kind.String())
	assert.Equal(t, "unknown", SignalKind(0).String())
}

type mapStore map[string]Identity

func (m mapStore) Lookup(_ context.Context, id string) (Identity, error) {
	if v, ok := m[id]; ok {
		return v, nil
	}
	return Identity{}, ErrIdentityNotFound
}

func TestAlwaysAccept(t *testing.T) {
	v := AlwaysAccept{}
	assert.Equal(t, 2, v.Arity())

	id, err := v.Validate(context.Background(), []string{"alice", "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, Identity{Username: "alice", Password: "s3cret"}, id)

	_, err = v.Validate(context.Background(), []string{"alice"})
	assert.Error(t, err)
}

func TestLookupBacked(t *testing.T) {
	v := LookupBacked{Store: mapStore{"dev1": {Username: "bob", Password: "pw"}}}
	assert.Equal(t, 1, v.Arity())

	id, err := v.Validate(context.Background(), []string{"dev1"})
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Username)

	_, err = v.Validate(context.Background(), []string{"nope"})
	assert.True(t, errors.Is(err, ErrIdentityNotFound))

	_, err = LookupBacked{}.Validate(context.Background(), []string{"dev1"})
	assert.Error(t, err)
}
