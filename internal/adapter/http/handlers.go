package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/Strob0t/agentlink/internal/adapter/ws"
	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
	"github.com/Strob0t/agentlink/internal/middleware"
	"github.com/Strob0t/agentlink/internal/port/historylog"
	"github.com/Strob0t/agentlink/internal/service"
)

// Handlers holds the services behind the inbound A2A API.
type Handlers struct {
	Tasks    *service.TaskService
	Executor *service.TaskExecutor // nil: tasks are driven through the status endpoint
	History  historylog.Log
	Events   *ws.Hub // nil: no live task-event websocket

	// HistoryDir is the working directory whose session journals are served.
	HistoryDir string
	// PublicURL prefixes checkUrls handed to callers.
	PublicURL string
}

// createTaskRequest accepts the message either flat or as an input object.
type createTaskRequest struct {
	AgentID          string                          `json:"agentId"`
	A2AAgentID       string                          `json:"a2aAgentId"`
	Message          string                          `json:"message"`
	Context          map[string]any                  `json:"context,omitempty"`
	Input            *task.Input                     `json:"input,omitempty"`
	TimeoutMs        int64                           `json:"timeoutMs,omitempty"`
	Timeout          int64                           `json:"timeout,omitempty"` // alias of timeoutMs
	PushNotification *webhook.PushNotificationConfig `json:"pushNotification,omitempty"`
}

type createTaskResponse struct {
	TaskID   string      `json:"taskId"`
	Status   task.Status `json:"status"`
	CheckURL string      `json:"checkUrl"`
}

// taskView is a task record as served, with protocol state and progress.
type taskView struct {
	task.Task
	State    a2a.TaskState  `json:"a2aState"`
	Progress *task.Progress `json:"progress,omitempty"`
}

type statusUpdateRequest struct {
	Status task.Status        `json:"status"`
	Output *task.Output       `json:"output,omitempty"`
	Error  *task.ErrorDetails `json:"error,omitempty"`
}

// CreateTask handles POST /a2a/{projectID}/tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[createTaskRequest](w, r)
	if !ok {
		return
	}
	projectID := urlParam(r, middleware.ProjectParam)

	in := task.Input{Message: body.Message, Context: body.Context}
	if body.Input != nil {
		in = *body.Input
	}
	timeoutMs := body.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = body.Timeout
	}
	agentID := body.AgentID
	if agentID == "" {
		agentID = body.A2AAgentID
	}

	t, err := h.Tasks.CreateTask(r.Context(), task.CreateRequest{
		ProjectID:        projectID,
		AgentID:          agentID,
		A2AAgentID:       body.A2AAgentID,
		Input:            in,
		TimeoutMs:        timeoutMs,
		PushNotification: body.PushNotification,
	})
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if h.Executor != nil {
		h.Executor.Start(r.Context(), t)
	}

	writeJSON(w, http.StatusAccepted, createTaskResponse{
		TaskID:   t.ID,
		Status:   t.Status,
		CheckURL: h.checkURL(projectID, t.ID),
	})
}

// ListTasks handles GET /a2a/{projectID}/tasks[?status=].
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := task.Status(r.URL.Query().Get("status"))
	tasks, err := h.Tasks.ListTasks(r.Context(), urlParam(r, middleware.ProjectParam), filter)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	now := time.Now()
	views := make([]taskView, 0, len(tasks))
	for i := range tasks {
		views = append(views, newTaskView(&tasks[i], now))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetTask handles GET /a2a/{projectID}/tasks/{taskID}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, found, err := h.Tasks.GetTask(r.Context(), urlParam(r, middleware.ProjectParam), urlParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t, time.Now()))
}

// CancelTask handles POST /a2a/{projectID}/tasks/{taskID}/cancel.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.CancelTask(r.Context(), urlParam(r, middleware.ProjectParam), urlParam(r, "taskID"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"taskId": t.ID, "status": t.Status})
}

// UpdateTaskStatus handles POST /a2a/{projectID}/tasks/{taskID}/status. It
// is the entry point for an external agent runtime reporting progress.
func (h *Handlers) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[statusUpdateRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Tasks.UpdateTaskStatus(r.Context(), urlParam(r, middleware.ProjectParam), urlParam(r, "taskID"), body.Status, &task.Patch{
		Output:       body.Output,
		ErrorDetails: body.Error,
	})
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t, time.Now()))
}

func (h *Handlers) checkURL(projectID, taskID string) string {
	return strings.TrimSuffix(h.PublicURL, "/") + "/a2a/" + projectID + "/tasks/" + taskID
}

func newTaskView(t *task.Task, now time.Time) taskView {
	return taskView{Task: *t, State: protocolState(t.Status), Progress: t.Progress(now)}
}

// protocolState maps a lifecycle status onto the A2A protocol task state.
func protocolState(s task.Status) a2a.TaskState {
	switch s {
	case task.StatusPending:
		return a2a.TaskStateSubmitted
	case task.StatusRunning:
		return a2a.TaskStateWorking
	case task.StatusCompleted:
		return a2a.TaskStateCompleted
	case task.StatusFailed:
		return a2a.TaskStateFailed
	case task.StatusCanceled:
		return a2a.TaskStateCanceled
	default:
		return a2a.TaskState(s)
	}
}
