// Package webhook delivers task-completion callbacks over HTTP with bounded
// retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
	"github.com/Strob0t/agentlink/internal/port/notifier"
)

// Options bounds delivery.
type Options struct {
	AttemptTimeout time.Duration // per attempt, request aborted past this
	MaxRetries     int           // attempts after the first
	BaseDelay      time.Duration // first retry delay, doubled each retry
	MaxDelay       time.Duration
}

// DefaultOptions returns the built-in delivery policy.
func DefaultOptions() Options {
	return Options{
		AttemptTimeout: 10 * time.Second,
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
	}
}

// Notifier posts task completions to push targets.
type Notifier struct {
	opts       Options
	httpClient *http.Client
	now        func() time.Time
}

var _ notifier.TaskNotifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. A nil client uses http.DefaultClient.
func NewNotifier(opts Options, client *http.Client) *Notifier {
	def := DefaultOptions()
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{opts: opts, httpClient: client, now: time.Now}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("webhook returned HTTP %d", e.code)
	}
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.code, e.body)
}

// SendTaskCompletion posts {taskId, status, output?, error?, timestamp} to
// cfg.URL. It retries network errors, timeouts and non-2xx responses.
func (n *Notifier) SendTaskCompletion(ctx context.Context, cfg webhook.PushNotificationConfig, taskID string, status task.Status, output *task.Output, errorDetails *task.ErrorDetails) webhook.Result {
	payload := webhook.Payload{
		TaskID:    taskID,
		Status:    string(status),
		Timestamp: n.now().UTC(),
	}
	if output != nil {
		payload.Output = output
	}
	if errorDetails != nil {
		payload.Error = errorDetails
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return webhook.Result{Error: fmt.Sprintf("encode payload: %v", err)}
	}
	authHeader := cfg.AuthorizationHeader()

	var res webhook.Result
	attempt := func() (struct{}, error) {
		res.Attempts++
		code, timedOut, err := n.post(ctx, cfg.URL, authHeader, body)
		res.StatusCode = code
		res.TimedOut = timedOut
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     n.opts.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         n.opts.MaxDelay,
	}
	_, err = backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(n.opts.MaxRetries+1)), //nolint:gosec // MaxRetries is clamped to >= 0
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("webhook delivery failed, retrying",
				"task_id", taskID, "attempt", res.Attempts, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		res.Error = err.Error()
		slog.Error("webhook delivery failed", "task_id", taskID, "attempts", res.Attempts, "error", err)
		return res
	}
	res.Success = true
	res.TimedOut = false
	return res
}

func (n *Notifier) post(ctx context.Context, url, authHeader string, body []byte) (code int, timedOut bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, n.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, false, backoff.Permanent(fmt.Errorf("webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "agentlink-webhook/1")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := n.httpClient.Do(req) //nolint:gosec // push target URL validated at task creation
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, true, fmt.Errorf("webhook timed out after %s", n.opts.AttemptTimeout)
		}
		return 0, false, fmt.Errorf("webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, false, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(respBody))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, false, nil
}
