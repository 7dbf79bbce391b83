// Package task defines the A2A task entity and its lifecycle rules.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/agentlink/internal/domain"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
)

// DefaultTimeoutMs is the wall-clock budget applied when a caller does not request one.
const DefaultTimeoutMs int64 = 300_000

var (
	// ErrNotFound is returned when a task record does not exist.
	ErrNotFound = fmt.Errorf("task %w", domain.ErrNotFound)

	// ErrInvalidTransition is wrapped by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrCannotCancel is returned when cancel is requested for a terminal task.
	ErrCannotCancel = errors.New("task cannot be canceled")
)

// Task is a durable unit of asynchronous A2A work.
type Task struct {
	ID               string                          `json:"id"`
	ProjectID        string                          `json:"projectId"`
	AgentID          string                          `json:"agentId"`
	A2AAgentID       string                          `json:"a2aAgentId"`
	Status           Status                          `json:"status"`
	Input            Input                           `json:"input"`
	Output           *Output                         `json:"output,omitempty"`
	ErrorDetails     *ErrorDetails                   `json:"errorDetails,omitempty"`
	TimeoutMs        int64                           `json:"timeoutMs"`
	PushNotification *webhook.PushNotificationConfig `json:"pushNotification,omitempty"`
	CreatedAt        time.Time                       `json:"createdAt"`
	UpdatedAt        time.Time                       `json:"updatedAt"`
	StartedAt        *time.Time                      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time                      `json:"completedAt,omitempty"`
}

// Input is the caller-supplied message plus optional free-form context.
type Input struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"` //nolint:gosec // A2A protocol requires flexible context
}

// Output is the structured result of a completed task.
type Output struct {
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"` //nolint:gosec // A2A protocol requires flexible output
	Artifacts []Artifact     `json:"artifacts,omitempty"`
}

// Artifact is a named piece of output content, inline or by reference.
type Artifact struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ErrorDetails describes why a task failed.
type ErrorDetails struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Machine-readable failure codes set by the engine itself.
const (
	CodeTimeout    = "TIMEOUT"
	CodeAgentError = "AGENT_ERROR"
)

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	ProjectID        string                          `json:"projectId"`
	AgentID          string                          `json:"agentId"`
	A2AAgentID       string                          `json:"a2aAgentId"`
	Input            Input                           `json:"input"`
	TimeoutMs        int64                           `json:"timeoutMs,omitempty"`
	PushNotification *webhook.PushNotificationConfig `json:"pushNotification,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("project_id is required: %w", domain.ErrValidation)
	}
	if r.AgentID == "" {
		return fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	}
	if r.Input.Message == "" {
		return fmt.Errorf("input.message is required: %w", domain.ErrValidation)
	}
	if r.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must be non-negative: %w", domain.ErrValidation)
	}
	if r.PushNotification != nil {
		if err := r.PushNotification.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Patch carries the optional fields merged into a task on a status transition.
type Patch struct {
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	Output       *Output       `json:"output,omitempty"`
	ErrorDetails *ErrorDetails `json:"errorDetails,omitempty"`
}

// Transition moves t to the target status, merging p. It enforces the
// transition table, the output/errorDetails exclusivity rule and strictly
// increasing UpdatedAt. On error t is left untouched.
func (t *Task) Transition(to Status, p *Patch, now time.Time) error {
	if err := ValidateTransition(t.Status, to); err != nil {
		return err
	}
	if p == nil {
		p = &Patch{}
	}
	if p.Output != nil && to != StatusCompleted {
		return fmt.Errorf("output is only allowed when completing a task: %w", domain.ErrValidation)
	}
	if p.ErrorDetails != nil && to != StatusFailed {
		return fmt.Errorf("error details are only allowed when failing a task: %w", domain.ErrValidation)
	}

	now = now.UTC()
	if p.StartedAt != nil {
		t.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	}
	if to == StatusRunning && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if to.IsTerminal() && t.CompletedAt == nil {
		t.CompletedAt = &now
	}
	t.Output = p.Output
	t.ErrorDetails = p.ErrorDetails
	t.Status = to

	next := now
	if !next.After(t.UpdatedAt) {
		next = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = next
	return nil
}

// Progress is the synthesized progress block reported for running tasks.
type Progress struct {
	State       string `json:"state"`
	ElapsedMs   int64  `json:"elapsedMs"`
	TimeoutMs   int64  `json:"timeoutMs"`
	RemainingMs int64  `json:"remainingMs"`
}

// Progress returns the progress block for a running task, or nil otherwise.
func (t *Task) Progress(now time.Time) *Progress {
	if t.Status != StatusRunning {
		return nil
	}
	started := t.CreatedAt
	if t.StartedAt != nil {
		started = *t.StartedAt
	}
	elapsed := now.Sub(started).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return &Progress{
		State:       "working",
		ElapsedMs:   elapsed,
		TimeoutMs:   t.TimeoutMs,
		RemainingMs: max(t.TimeoutMs-elapsed, 0),
	}
}
