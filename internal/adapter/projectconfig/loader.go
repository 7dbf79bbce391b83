// Package projectconfig loads per-project A2A configuration (allow-list and
// default push target) from <dataDir>/projects/<project>/a2a.yaml.
package projectconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/agentlink/internal/adapter/filestore"
	"github.com/Strob0t/agentlink/internal/domain/agent"
	"github.com/Strob0t/agentlink/internal/port/cache"
	pcfg "github.com/Strob0t/agentlink/internal/port/projectconfig"
)

// Loader reads project config files, caching parsed results keyed by the
// file's path, size and modification time so edits take effect at once.
type Loader struct {
	layout filestore.Layout
	cache  cache.Cache
	ttl    time.Duration
}

var _ pcfg.Loader = (*Loader)(nil)

// NewLoader creates a Loader. c may be nil to disable caching.
func NewLoader(dataDir string, c cache.Cache, ttl time.Duration) *Loader {
	return &Loader{layout: filestore.Layout{Root: dataDir}, cache: c, ttl: ttl}
}

// Path returns the config file of a project.
func (l *Loader) Path(projectID string) string {
	return l.layout.ConfigPath(projectID)
}

// Load returns the project's configuration. found is false when the file
// does not exist.
func (l *Loader) Load(ctx context.Context, projectID string) (*agent.ProjectConfig, bool, error) {
	path := l.layout.ConfigPath(projectID)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat project config: %w", err)
	}

	key := fmt.Sprintf("projectconfig:%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
	if l.cache != nil {
		if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
			var cfg agent.ProjectConfig
			if err := json.Unmarshal(data, &cfg); err == nil {
				return &cfg, true, nil
			}
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a sanitized project dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read project config: %w", err)
	}
	var cfg agent.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("parse project config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("project config %s: %w", path, err)
	}

	if l.cache != nil {
		if enc, err := json.Marshal(&cfg); err == nil {
			if err := l.cache.Set(ctx, key, enc, l.ttl); err != nil {
				slog.Debug("project config cache set failed", "error", err)
			}
		}
	}
	return &cfg, true, nil
}

// Save writes cfg as YAML, creating the project directory.
func (l *Loader) Save(projectID string, cfg *agent.ProjectConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.layout.ProjectDir(projectID), 0o750); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode project config: %w", err)
	}
	return os.WriteFile(l.layout.ConfigPath(projectID), data, 0o600)
}
