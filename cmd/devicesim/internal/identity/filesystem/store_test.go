package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.json")
	s := NewFileStore(path)

	require.NoError(t, s.Store([]Record{{ID: "dev1", Username: "alice", Password: "s3cret"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	id, err := s.Lookup(context.Background(), "dev1")
	require.NoError(t, err)
	assert.Equal(t, core.Identity{Username: "alice", Password: "s3cret"}, id)

	_, err = s.Lookup(context.Background(), "dev2")
	assert.True(t, errors.Is(err, core.ErrIdentityNotFound))
}

func TestFileStoreSeesEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.json")
	s := NewFileStore(path)
	require.NoError(t, s.Store(nil))

	_, err := s.Lookup(context.Background(), "dev1")
	assert.True(t, errors.Is(err, core.ErrIdentityNotFound))

	require.NoError(t, s.Store([]Record{{ID: "dev1", Username: "bob"}}))
	id, err := s.Lookup(context.Background(), "dev1")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Username)
}

func TestFileStoreErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileStore(filepath.Join(dir, "missing.json")).Lookup(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrIdentityNotFound))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))
	_, err = NewFileStore(bad).Lookup(context.Background(), "x")
	assert.ErrorContains(t, err, "parse identity file")
}
