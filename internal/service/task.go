package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	alotel "github.com/Strob0t/agentlink/internal/adapter/otel"
	"github.com/Strob0t/agentlink/internal/domain"
	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
	"github.com/Strob0t/agentlink/internal/logger"
	"github.com/Strob0t/agentlink/internal/port/messagequeue"
	"github.com/Strob0t/agentlink/internal/port/notifier"
	"github.com/Strob0t/agentlink/internal/port/projectconfig"
	"github.com/Strob0t/agentlink/internal/port/taskstore"
)

// TaskService owns the A2A task lifecycle: creation, guarded status
// transitions, cancellation and listing. Terminal transitions fan out to the
// message queue and the project's push target.
type TaskService struct {
	store          taskstore.Store
	queue          messagequeue.Publisher
	notifier       notifier.TaskNotifier
	projects       projectconfig.Loader
	metrics        *alotel.Metrics
	defaultTimeout time.Duration
	now            func() time.Time

	deliveries sync.WaitGroup
}

// NewTaskService creates a TaskService. queue may be nil. A non-positive
// defaultTimeout falls back to task.DefaultTimeoutMs.
func NewTaskService(store taskstore.Store, queue messagequeue.Publisher, defaultTimeout time.Duration) *TaskService {
	if defaultTimeout <= 0 {
		defaultTimeout = time.Duration(task.DefaultTimeoutMs) * time.Millisecond
	}
	return &TaskService{
		store:          store,
		queue:          queue,
		defaultTimeout: defaultTimeout,
		now:            time.Now,
	}
}

// SetNotifier enables completion webhooks. projects supplies the fallback
// push target for tasks created without one and may be nil.
func (s *TaskService) SetNotifier(n notifier.TaskNotifier, projects projectconfig.Loader) {
	s.notifier = n
	s.projects = projects
}

// SetMetrics sets the OTEL metrics instruments.
func (s *TaskService) SetMetrics(m *alotel.Metrics) {
	s.metrics = m
}

// CreateTask persists a new pending task.
func (s *TaskService) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	timeoutMs := req.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = s.defaultTimeout.Milliseconds()
	}

	now := s.now().UTC()
	t := &task.Task{
		ID:               uuid.NewString(),
		ProjectID:        req.ProjectID,
		AgentID:          req.AgentID,
		A2AAgentID:       req.A2AAgentID,
		Status:           task.StatusPending,
		Input:            req.Input,
		TimeoutMs:        timeoutMs,
		PushNotification: req.PushNotification,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	ctx, span := alotel.StartTaskSpan(ctx, "create", t.ProjectID, t.ID)
	defer span.End()

	if err := s.store.Create(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create task: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TasksCreated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("project.id", t.ProjectID),
			attribute.String("agent.id", t.AgentID),
		))
	}
	s.publish(ctx, messagequeue.SubjectTaskCreated, messagequeue.TaskCreatedPayload{
		TaskID:     t.ID,
		ProjectID:  t.ProjectID,
		AgentID:    t.AgentID,
		A2AAgentID: t.A2AAgentID,
		CreatedAt:  t.CreatedAt,
	})
	slog.InfoContext(ctx, "task created", "task_id", t.ID, "project_id", t.ProjectID, "agent_id", t.AgentID)
	return t, nil
}

// GetTask returns the task. found is false, with a nil error, when no
// record exists. Unreadable records are errors.
func (s *TaskService) GetTask(ctx context.Context, projectID, taskID string) (*task.Task, bool, error) {
	t, err := s.store.Get(ctx, projectID, taskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

// UpdateTaskStatus moves a task to status, merging patch. The transition is
// checked against the record as read under the task lock, so of two
// concurrent writers racing into terminal states only the first commits.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status task.Status, patch *task.Patch) (*task.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrValidation)
	}
	return s.transition(ctx, "update_status", projectID, taskID, func(t *task.Task) error {
		return t.Transition(status, patch, s.now())
	})
}

// CancelTask marks a non-terminal task canceled. Cancellation is advisory:
// a running agent is not interrupted, and its late result is rejected.
func (s *TaskService) CancelTask(ctx context.Context, projectID, taskID string) (*task.Task, error) {
	return s.transition(ctx, "cancel", projectID, taskID, func(t *task.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("task %s is already %s: %w", t.ID, t.Status, task.ErrCannotCancel)
		}
		return t.Transition(task.StatusCanceled, nil, s.now())
	})
}

// ListTasks returns the project's tasks newest first, optionally filtered by
// status. A project without tasks yields an empty slice.
func (s *TaskService) ListTasks(ctx context.Context, projectID string, status task.Status) ([]task.Task, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrValidation)
	}
	all, err := s.store.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]task.Task, 0, len(all))
	for i := range all {
		if status == "" || all[i].Status == status {
			out = append(out, all[i])
		}
	}
	slices.SortFunc(out, func(a, b task.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Drain waits for in-flight webhook deliveries or until ctx is done.
func (s *TaskService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TaskService) transition(ctx context.Context, op, projectID, taskID string, fn taskstore.MutateFunc) (*task.Task, error) {
	ctx = logger.WithTaskID(ctx, taskID)
	ctx, span := alotel.StartTaskSpan(ctx, op, projectID, taskID)
	defer span.End()

	var from task.Status
	updated, err := s.store.Update(ctx, projectID, taskID, func(t *task.Task) error {
		from = t.Status
		return fn(t)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("task.from", string(from)),
		attribute.String("task.status", string(updated.Status)),
	)
	s.afterTransition(ctx, from, updated)
	return updated, nil
}

// afterTransition runs the side effects of a committed transition. None of
// them can undo it.
func (s *TaskService) afterTransition(ctx context.Context, from task.Status, t *task.Task) {
	slog.InfoContext(ctx, "task transition", "project_id", t.ProjectID, "from", from, "status", t.Status)

	payload := messagequeue.TaskStatusPayload{
		TaskID:    t.ID,
		ProjectID: t.ProjectID,
		From:      string(from),
		Status:    string(t.Status),
		Terminal:  t.Status.IsTerminal(),
		UpdatedAt: t.UpdatedAt,
	}
	if t.ErrorDetails != nil {
		payload.Error = t.ErrorDetails.Message
	}
	s.publish(ctx, messagequeue.SubjectTaskStatus, payload)

	if s.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("project.id", t.ProjectID),
			attribute.String("status", string(t.Status)),
		)
		s.metrics.TaskTransitions.Add(ctx, 1, attrs)
		if t.Status.IsTerminal() {
			s.metrics.TaskDuration.Record(ctx, t.UpdatedAt.Sub(t.CreatedAt).Seconds(), attrs)
		}
	}

	if t.Status.IsTerminal() {
		s.dispatchWebhook(ctx, t)
	}
}

// dispatchWebhook delivers the terminal status in the background. The task's
// own push target wins over the project's.
func (s *TaskService) dispatchWebhook(ctx context.Context, t *task.Task) {
	if s.notifier == nil {
		return
	}
	target := t.PushNotification
	if target == nil && s.projects != nil {
		cfg, found, err := s.projects.Load(ctx, t.ProjectID)
		if err != nil {
			slog.WarnContext(ctx, "project config unavailable for webhook", "project_id", t.ProjectID, "error", err)
			return
		}
		if found {
			target = cfg.PushNotification
		}
	}
	if target == nil {
		return
	}

	snapshot := *t
	cfg := *target
	// Delivery outlives the request that committed the transition.
	bg := context.WithoutCancel(ctx)
	s.deliveries.Go(func() {
		s.deliver(bg, cfg, &snapshot)
	})
}

func (s *TaskService) deliver(ctx context.Context, cfg webhook.PushNotificationConfig, t *task.Task) {
	ctx, span := alotel.StartWebhookSpan(ctx, t.ID, string(t.Status))
	defer span.End()

	res := s.notifier.SendTaskCompletion(ctx, cfg, t.ID, t.Status, t.Output, t.ErrorDetails)
	span.SetAttributes(attribute.Int("webhook.attempts", res.Attempts))

	outcome := "delivered"
	if !res.Success {
		outcome = "failed"
		span.SetStatus(codes.Error, res.Error)
		slog.WarnContext(ctx, "webhook delivery failed",
			"project_id", t.ProjectID,
			"attempts", res.Attempts,
			"status_code", res.StatusCode,
			"timed_out", res.TimedOut,
			"error", res.Error,
		)
	} else {
		slog.DebugContext(ctx, "webhook delivered", "project_id", t.ProjectID, "attempts", res.Attempts)
	}

	if s.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("project.id", t.ProjectID),
			attribute.String("outcome", outcome),
		)
		s.metrics.WebhookDeliveries.Add(ctx, 1, attrs)
		s.metrics.WebhookAttempts.Record(ctx, int64(res.Attempts), attrs)
	}
}

func (s *TaskService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal queue payload", "subject", subject, "error", err)
		return
	}
	// The task file is the source of truth; a lost event is logged, not fatal.
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.ErrorContext(ctx, "failed to publish task event", "subject", subject, "error", err)
	}
}
