package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/agentlink/internal/adapter/filestore"
	"github.com/Strob0t/agentlink/internal/domain/agent"
	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
)

// patientLocker retries long enough that tests never see lock contention.
func patientLocker() *filestore.Locker {
	return filestore.NewLocker(filestore.LockOptions{
		Retries:    500,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		StaleAfter: time.Minute,
	})
}

func newTestTaskService(t *testing.T, q *fakeQueue) *TaskService {
	t.Helper()
	store := filestore.NewTaskStore(t.TempDir(), patientLocker())
	if q == nil {
		return NewTaskService(store, nil, 0)
	}
	return NewTaskService(store, q, 0)
}

func createTestTask(t *testing.T, svc *TaskService, projectID string) *task.Task {
	t.Helper()
	tk, err := svc.CreateTask(context.Background(), task.CreateRequest{
		ProjectID: projectID,
		AgentID:   "agent-1",
		Input:     task.Input{Message: "hello"},
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return tk
}

// fakeQueue records published messages.
type fakeQueue struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.subjects = append(q.subjects, subject)
	q.payloads = append(q.payloads, data)
	return nil
}

func (q *fakeQueue) statuses(t *testing.T) []string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for i, s := range q.subjects {
		if s != "a2a.tasks.status" {
			continue
		}
		var p struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(q.payloads[i], &p); err != nil {
			t.Fatal(err)
		}
		out = append(out, p.Status)
	}
	return out
}

type notification struct {
	cfg    webhook.PushNotificationConfig
	taskID string
	status task.Status
	output *task.Output
	errd   *task.ErrorDetails
}

// fakeNotifier records deliveries.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *fakeNotifier) SendTaskCompletion(_ context.Context, cfg webhook.PushNotificationConfig, taskID string, status task.Status, output *task.Output, errorDetails *task.ErrorDetails) webhook.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{cfg: cfg, taskID: taskID, status: status, output: output, errd: errorDetails})
	return webhook.Result{Success: true, Attempts: 1, StatusCode: 200}
}

func (n *fakeNotifier) snapshot() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

// fakeProjects serves project configs from memory.
type fakeProjects map[string]*agent.ProjectConfig

func (f fakeProjects) Load(_ context.Context, projectID string) (*agent.ProjectConfig, bool, error) {
	c, ok := f[projectID]
	return c, ok, nil
}
