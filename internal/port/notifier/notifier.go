// Package notifier defines the task-completion callback port.
package notifier

import (
	"context"

	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
)

// TaskNotifier delivers a terminal task status to a push target. It never
// returns an error; the outcome is reported in the Result.
type TaskNotifier interface {
	SendTaskCompletion(ctx context.Context, cfg webhook.PushNotificationConfig, taskID string, status task.Status, output *task.Output, errorDetails *task.ErrorDetails) webhook.Result
}
