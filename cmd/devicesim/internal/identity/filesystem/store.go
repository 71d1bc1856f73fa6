package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
)

// Record is one entry of the identity file.
type Record struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// FileStore reads identities from a JSON array on every lookup, so edits to
// the file apply to the next handshake without a restart.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Lookup(ctx context.Context, id string) (core.Identity, error) {
	records, err := s.load()
	if err != nil {
		return core.Identity{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return core.Identity{Username: r.Username, Password: r.Password}, nil
		}
	}
	return core.Identity{}, fmt.Errorf("id %q in %s: %w", id, s.Path, core.ErrIdentityNotFound)
}

// Store writes records to the file, replacing its contents.
func (s *FileStore) Store(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identities: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	return nil
}

func (s *FileStore) load() ([]Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", s.Path, err)
	}
	return records, nil
}
