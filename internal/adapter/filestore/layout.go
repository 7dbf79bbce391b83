// Package filestore persists tasks and API key registries as JSON files,
// one directory per project, serialized by lock files.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/Strob0t/agentlink/internal/domain"
)

const (
	tasksDir     = "tasks"
	registryFile = "api-keys.json"
	configFile   = "a2a.yaml"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// Layout maps logical identifiers to paths under a data directory.
type Layout struct {
	Root string
}

// ProjectDir returns the directory owned by projectID. Identifiers that are
// not safe file names are replaced by a stable hash-derived name.
func (l Layout) ProjectDir(projectID string) string {
	return filepath.Join(l.Root, "projects", projectDirName(projectID))
}

// TasksDir returns the directory holding a project's task records.
func (l Layout) TasksDir(projectID string) string {
	return filepath.Join(l.ProjectDir(projectID), tasksDir)
}

// TaskPath returns the record path for a task. Task ids must be UUIDs.
func (l Layout) TaskPath(projectID, taskID string) (string, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return "", fmt.Errorf("invalid task id %q: %w", taskID, domain.ErrValidation)
	}
	return filepath.Join(l.TasksDir(projectID), taskID+".json"), nil
}

// RegistryPath returns the API key registry path of a project.
func (l Layout) RegistryPath(projectID string) string {
	return filepath.Join(l.ProjectDir(projectID), registryFile)
}

// ConfigPath returns the A2A configuration path of a project.
func (l Layout) ConfigPath(projectID string) string {
	return filepath.Join(l.ProjectDir(projectID), configFile)
}

func projectDirName(projectID string) string {
	if safeName.MatchString(projectID) && projectID != "." && projectID != ".." {
		return projectID
	}
	sum := sha256.Sum256([]byte(projectID))
	return "p-" + hex.EncodeToString(sum[:])[:16]
}
