package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Strob0t/agentlink/internal/domain/apikey"
	"github.com/Strob0t/agentlink/internal/port/apikeystore"
)

// KeyStore implements apikeystore.Store with one registry file per project.
type KeyStore struct {
	layout Layout
	locker *Locker
}

var _ apikeystore.Store = (*KeyStore)(nil)

// NewKeyStore creates a KeyStore rooted at dataDir.
func NewKeyStore(dataDir string, locker *Locker) *KeyStore {
	return &KeyStore{layout: Layout{Root: dataDir}, locker: locker}
}

// Load reads the registry without locking. Writers replace the file by
// rename, so the read is always a complete document.
func (s *KeyStore) Load(_ context.Context, projectID string) (*apikey.Registry, error) {
	reg, _, err := readRegistry(s.layout.RegistryPath(projectID))
	return reg, err
}

// Update creates the registry file if needed and applies fn under its lock.
func (s *KeyStore) Update(ctx context.Context, projectID string, fn apikeystore.MutateFunc) error {
	path := s.layout.RegistryPath(projectID)
	if err := os.MkdirAll(s.layout.ProjectDir(projectID), 0o750); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	release, err := s.locker.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	reg, existed, err := readRegistry(path)
	if err != nil {
		return err
	}
	if !existed {
		if err := writeJSONAtomic(path, reg); err != nil {
			return fmt.Errorf("initialize key registry: %w", err)
		}
	}

	changed, err := fn(reg)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	reg.Version = apikey.RegistryVersion
	if err := writeJSONAtomic(path, reg); err != nil {
		return fmt.Errorf("write key registry: %w", err)
	}
	return nil
}

func readRegistry(path string) (reg *apikey.Registry, existed bool, err error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a sanitized project dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &apikey.Registry{Version: apikey.RegistryVersion, Keys: []apikey.Key{}}, false, nil
		}
		return nil, false, fmt.Errorf("read key registry: %w", err)
	}
	reg = &apikey.Registry{}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, true, fmt.Errorf("decode key registry: %w", err)
	}
	if reg.Keys == nil {
		reg.Keys = []apikey.Key{}
	}
	return reg, true, nil
}
