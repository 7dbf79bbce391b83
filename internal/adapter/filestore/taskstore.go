package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/port/taskstore"
)

// TaskStore implements taskstore.Store with one JSON file per task.
type TaskStore struct {
	layout Layout
	locker *Locker
}

var _ taskstore.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore rooted at dataDir.
func NewTaskStore(dataDir string, locker *Locker) *TaskStore {
	return &TaskStore{layout: Layout{Root: dataDir}, locker: locker}
}

// Create writes a new task record.
func (s *TaskStore) Create(ctx context.Context, t *task.Task) error {
	path, err := s.layout.TaskPath(t.ProjectID, t.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	release, err := s.locker.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	if err := writeJSONAtomic(path, t); err != nil {
		return fmt.Errorf("write task %s: %w", t.ID, err)
	}
	return nil
}

// Get reads a task record.
func (s *TaskStore) Get(_ context.Context, projectID, taskID string) (*task.Task, error) {
	path, err := s.layout.TaskPath(projectID, taskID)
	if err != nil {
		// An id that cannot name a record cannot exist.
		return nil, fmt.Errorf("get task %s: %w", taskID, task.ErrNotFound)
	}
	return readTask(path, taskID)
}

// Update applies fn to the record under its lock. The record is checked for
// existence before locking so a missing task fails without waiting on retries.
func (s *TaskStore) Update(ctx context.Context, projectID, taskID string, fn taskstore.MutateFunc) (*task.Task, error) {
	path, err := s.layout.TaskPath(projectID, taskID)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", taskID, task.ErrNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("update task %s: %w", taskID, task.ErrNotFound)
		}
		return nil, fmt.Errorf("stat task %s: %w", taskID, err)
	}

	release, err := s.locker.Acquire(ctx, path)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := readTask(path, taskID)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := writeJSONAtomic(path, t); err != nil {
		return nil, fmt.Errorf("write task %s: %w", taskID, err)
	}
	return t, nil
}

// List reads every task record of a project. Unreadable records are logged
// and skipped.
func (s *TaskStore) List(_ context.Context, projectID string) ([]task.Task, error) {
	dir := s.layout.TasksDir(projectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	tasks := make([]task.Task, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		t, err := readTask(filepath.Join(dir, name), id)
		if err != nil {
			slog.Warn("skipping unreadable task record", "project_id", projectID, "file", name, "error", err)
			continue
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func readTask(path, taskID string) (*task.Task, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a validated UUID
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("get task %s: %w", taskID, task.ErrNotFound)
		}
		return nil, fmt.Errorf("read task %s: %w", taskID, err)
	}
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &t, nil
}
