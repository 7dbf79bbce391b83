// Package a2aclient calls remote A2A agents: synchronous messages, task
// creation, task polling and event streams.
package a2aclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// Result is the outcome of a remote call. Calls never fail with a Go error:
// Success is false and Error describes the failure.
type Result struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
	Status     string `json:"status,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failure builds an unsuccessful Result.
func Failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// MessageRequest is the body of a synchronous or streaming message call.
type MessageRequest struct {
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
}

// TaskRequest is the body of a task creation call. Timeout is in ms.
type TaskRequest struct {
	Message string         `json:"message"`
	Timeout int64          `json:"timeout"`
	Context map[string]any `json:"context,omitempty"`
}

// Client performs authenticated calls to remote agents.
type Client struct {
	httpClient *http.Client
}

// New creates a Client. A nil client uses http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// SendMessage posts a message and waits for the reply. Data is the
// remote's "response" field, or the whole body when it has none.
func (c *Client) SendMessage(ctx context.Context, endpoint, apiKey string, req MessageRequest, timeout time.Duration) Result {
	obj, res, ok := c.doJSON(ctx, http.MethodPost, endpoint, apiKey, req, timeout)
	if !ok {
		return res
	}
	if m, isObj := obj.(map[string]any); isObj {
		if sid, _ := m["sessionId"].(string); sid != "" {
			res.SessionID = sid
		}
		if v, has := m["response"]; has {
			res.Data = v
			return res
		}
	}
	res.Data = obj
	return res
}

// CreateTask posts a task to the agent's task endpoint. On acceptance Data
// carries the checkUrl for polling.
func (c *Client) CreateTask(ctx context.Context, agentURL, apiKey string, req TaskRequest, timeout time.Duration) Result {
	obj, res, ok := c.doJSON(ctx, http.MethodPost, TaskEndpoint(agentURL), apiKey, req, timeout)
	if !ok {
		return res
	}
	m, _ := obj.(map[string]any)
	taskID, _ := m["taskId"].(string)
	if taskID == "" {
		return Result{StatusCode: res.StatusCode, Error: "malformed response from remote agent: missing taskId"}
	}
	res.TaskID = taskID
	res.Status, _ = m["status"].(string)
	res.Data = map[string]any{"checkUrl": m["checkUrl"]}
	return res
}

// GetTask fetches a remote task record from its checkUrl.
func (c *Client) GetTask(ctx context.Context, checkURL, apiKey string, timeout time.Duration) Result {
	obj, res, ok := c.doJSON(ctx, http.MethodGet, checkURL, apiKey, nil, timeout)
	if !ok {
		return res
	}
	if m, isObj := obj.(map[string]any); isObj {
		res.Status, _ = m["status"].(string)
		if id, _ := m["id"].(string); id != "" {
			res.TaskID = id
		} else {
			res.TaskID, _ = m["taskId"].(string)
		}
	}
	res.Data = obj
	return res
}

// Stream posts a message to a streaming endpoint and yields the decoded
// events. The response body is closed when iteration stops. Failures before
// the stream opens are yielded as a single error.
func (c *Client) Stream(ctx context.Context, endpoint, apiKey string, req MessageRequest) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		body, err := json.Marshal(req)
		if err != nil {
			yield(StreamEvent{}, fmt.Errorf("encode request: %w", err))
			return
		}
		httpReq, err := newRequest(ctx, http.MethodPost, endpoint, apiKey, body)
		if err != nil {
			yield(StreamEvent{}, err)
			return
		}
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")

		resp, err := c.httpClient.Do(httpReq) //nolint:gosec // endpoint checked against the allow-list
		if err != nil {
			yield(StreamEvent{}, fmt.Errorf("request to remote agent failed: %w", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			yield(StreamEvent{}, &StatusError{Code: resp.StatusCode, Body: raw})
			return
		}
		for ev, err := range decodeSSE(resp.Body) {
			if err != nil && ctx.Err() != nil {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// doJSON performs one call and decodes the JSON body. ok is false when res
// already describes a failure.
func (c *Client) doJSON(ctx context.Context, method, endpoint, apiKey string, payload any, timeout time.Duration) (obj any, res Result, ok bool) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, Failure("encode request: %v", err), false
		}
		body = b
	}
	req, err := newRequest(ctx, method, endpoint, apiKey, body)
	if err != nil {
		return nil, Failure("%v", err), false
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // endpoint checked against the allow-list
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Result{TimedOut: true, Error: fmt.Sprintf("request to remote agent timed out after %s", timeout)}, false
		}
		return nil, Failure("request to remote agent failed: %v", err), false
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Result{StatusCode: resp.StatusCode, TimedOut: true, Error: fmt.Sprintf("request to remote agent timed out after %s", timeout)}, false
		}
		return nil, Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("read response: %v", err)}, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Result{StatusCode: resp.StatusCode, Error: statusMessage(resp.StatusCode, raw)}, false
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("malformed response from remote agent: %v", err)}, false
	}
	return obj, Result{Success: true, StatusCode: resp.StatusCode}, true
}

func newRequest(ctx context.Context, method, endpoint, apiKey string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

// StatusError is a non-2xx reply to a stream request.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return statusMessage(e.Code, e.Body)
}

// statusMessage renders a non-2xx reply, preferring the remote's own
// "error" or "message" field.
func statusMessage(code int, raw []byte) string {
	msg := remoteMessage(raw)
	if msg == "" {
		msg = http.StatusText(code)
	}
	return fmt.Sprintf("remote agent returned HTTP %d: %s", code, msg)
}

func remoteMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		switch e := body["error"].(type) {
		case string:
			return e
		case map[string]any:
			if m, _ := e["message"].(string); m != "" {
				return m
			}
		}
		if m, _ := body["message"].(string); m != "" {
			return m
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
