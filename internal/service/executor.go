package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	alotel "github.com/Strob0t/agentlink/internal/adapter/otel"
	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/logger"
	"github.com/Strob0t/agentlink/internal/port/agentsession"
)

// TaskExecutor drives pending tasks through an agent session: running,
// then completed or failed. A task canceled while its agent works keeps
// the canceled status and the late result is dropped.
type TaskExecutor struct {
	tasks    *TaskService
	sessions agentsession.Provider

	running sync.WaitGroup
	slots   *semaphore.Weighted // nil: unbounded
}

// NewTaskExecutor creates a TaskExecutor.
func NewTaskExecutor(tasks *TaskService, sessions agentsession.Provider) *TaskExecutor {
	return &TaskExecutor{tasks: tasks, sessions: sessions}
}

// SetConcurrency bounds how many tasks execute at once. Tasks waiting for
// a slot stay pending. limit < 1 removes the bound.
func (e *TaskExecutor) SetConcurrency(limit int) {
	if limit < 1 {
		e.slots = nil
		return
	}
	e.slots = semaphore.NewWeighted(int64(limit))
}

// Start executes t in the background.
func (e *TaskExecutor) Start(ctx context.Context, t *task.Task) {
	bg := context.WithoutCancel(ctx)
	e.running.Go(func() {
		if e.slots != nil {
			if err := e.slots.Acquire(bg, 1); err != nil {
				return
			}
			defer e.slots.Release(1)
		}
		if _, err := e.Execute(bg, t); err != nil {
			slog.WarnContext(logger.WithTaskID(bg, t.ID), "task execution ended without result", "project_id", t.ProjectID, "error", err)
		}
	})
}

// Wait blocks until every started execution has finished.
func (e *TaskExecutor) Wait() {
	e.running.Wait()
}

// Execute runs t to a terminal status and returns the committed record.
// It fails with task.ErrInvalidTransition when the task left the expected
// state underneath it, e.g. by cancellation.
func (e *TaskExecutor) Execute(ctx context.Context, t *task.Task) (*task.Task, error) {
	ctx = logger.WithTaskID(ctx, t.ID)
	ctx, span := alotel.StartExecutionSpan(ctx, t.ProjectID, t.ID, t.AgentID)
	defer span.End()

	if _, err := e.tasks.UpdateTaskStatus(ctx, t.ProjectID, t.ID, task.StatusRunning, nil); err != nil {
		return nil, fmt.Errorf("start task: %w", err)
	}

	out, runErr := e.run(ctx, t)

	// Commit even if the caller went away meanwhile.
	commitCtx := context.WithoutCancel(ctx)
	var (
		final *task.Task
		err   error
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		final, err = e.tasks.UpdateTaskStatus(commitCtx, t.ProjectID, t.ID, task.StatusFailed, &task.Patch{
			ErrorDetails: failureDetails(runErr, t.TimeoutMs),
		})
	} else {
		final, err = e.tasks.UpdateTaskStatus(commitCtx, t.ProjectID, t.ID, task.StatusCompleted, &task.Patch{
			Output: out,
		})
	}
	if err != nil {
		if errors.Is(err, task.ErrInvalidTransition) {
			slog.InfoContext(ctx, "discarding late agent result", "project_id", t.ProjectID, "error", err)
		}
		return nil, fmt.Errorf("finish task: %w", err)
	}
	return final, nil
}

// run sends the task input under the task's wall-clock budget.
func (e *TaskExecutor) run(ctx context.Context, t *task.Task) (*task.Output, error) {
	timeout := time.Duration(t.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(task.DefaultTimeoutMs) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeoutCause(ctx, timeout, errTaskTimeout)
	defer cancel()

	session, err := e.sessions.Session(runCtx, t.ProjectID, t.AgentID)
	if err != nil {
		return nil, fmt.Errorf("open agent session: %w", err)
	}
	out, err := session.SendMessage(runCtx, t.Input)
	if err != nil {
		if errors.Is(context.Cause(runCtx), errTaskTimeout) {
			return nil, errTaskTimeout
		}
		return nil, err
	}
	if out == nil {
		out = &task.Output{}
	}
	return out, nil
}

var errTaskTimeout = errors.New("task timed out")

func failureDetails(err error, timeoutMs int64) *task.ErrorDetails {
	if errors.Is(err, errTaskTimeout) {
		return &task.ErrorDetails{
			Message: fmt.Sprintf("task exceeded its timeout of %d ms", timeoutMs),
			Code:    task.CodeTimeout,
		}
	}
	return &task.ErrorDetails{Message: err.Error(), Code: task.CodeAgentError}
}
