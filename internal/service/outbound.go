package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/agentlink/internal/adapter/a2aclient"
	alotel "github.com/Strob0t/agentlink/internal/adapter/otel"
	"github.com/Strob0t/agentlink/internal/domain/agent"
	"github.com/Strob0t/agentlink/internal/port/historylog"
	"github.com/Strob0t/agentlink/internal/port/projectconfig"
	"github.com/Strob0t/agentlink/internal/resilience"
)

// Call modes, as reported in spans and metrics.
const (
	ModeSync   = "sync"
	ModeTask   = "task"
	ModeStream = "stream"
	ModePoll   = "poll"
)

// CallRequest is one outbound call to a remote agent. TimeoutMs bounds the
// HTTP exchange; in task mode it is also the budget requested from the
// remote.
type CallRequest struct {
	AgentURL   string         `json:"agentUrl"`
	Message    string         `json:"message"`
	UseTask    bool           `json:"useTask,omitempty"`
	Stream     bool           `json:"stream,omitempty"`
	TimeoutMs  int64          `json:"timeout,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	WorkingDir string         `json:"workingDirectory,omitempty"`
}

// OutboundService calls remote agents on behalf of a project, restricted to
// the project's allow-list. Every call yields an a2aclient.Result; failures
// are values.
type OutboundService struct {
	projects       projectconfig.Loader
	client         *a2aclient.Client
	history        historylog.Log
	workingDir     string
	defaultTimeout time.Duration
	taskTimeout    time.Duration
	metrics        *alotel.Metrics
	secrets        SecretLookup
	breakers       *resilience.Set
}

// SecretLookup resolves a named secret referenced by an allowed agent's key.
type SecretLookup func(name string) (string, bool)

// NewOutboundService creates an OutboundService.
func NewOutboundService(projects projectconfig.Loader, client *a2aclient.Client, defaultTimeout, taskTimeout time.Duration) *OutboundService {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if taskTimeout <= 0 {
		taskTimeout = 300 * time.Second
	}
	return &OutboundService{
		projects:       projects,
		client:         client,
		defaultTimeout: defaultTimeout,
		taskTimeout:    taskTimeout,
	}
}

// SetHistory enables journaling of streamed events. workingDir is used when
// a request names none.
func (s *OutboundService) SetHistory(log historylog.Log, workingDir string) {
	s.history = log
	s.workingDir = workingDir
}

// SetSecrets enables "secret:NAME" agent credentials.
func (s *OutboundService) SetSecrets(lookup SecretLookup) {
	s.secrets = lookup
}

// SetBreakers enables per-agent circuit breaking.
func (s *OutboundService) SetBreakers(b *resilience.Set) {
	s.breakers = b
}

// SetMetrics sets the OTEL metrics instruments.
func (s *OutboundService) SetMetrics(m *alotel.Metrics) {
	s.metrics = m
}

// Call performs req in synchronous, task or streaming mode. Task mode wins
// when both UseTask and Stream are set.
func (s *OutboundService) Call(ctx context.Context, projectID string, req CallRequest) (res a2aclient.Result) {
	mode := ModeSync
	switch {
	case req.UseTask:
		mode = ModeTask
	case req.Stream:
		mode = ModeStream
	}
	ctx, span := alotel.StartOutboundSpan(ctx, projectID, req.AgentURL, mode)
	defer span.End()
	defer s.finish(ctx, span, projectID, mode, &res)

	if req.AgentURL == "" {
		return a2aclient.Failure("agentUrl is required")
	}
	if req.Message == "" {
		return a2aclient.Failure("message is required")
	}
	dir, err := s.journalDir(req.WorkingDir)
	if err != nil {
		return a2aclient.Failure("%v", err)
	}
	req.WorkingDir = dir
	allowed, denied := s.resolve(ctx, projectID, req.AgentURL)
	if denied != nil {
		return *denied
	}

	var breaker *resilience.Breaker
	if s.breakers != nil {
		breaker = s.breakers.Get(allowed.URL)
		if !breaker.Allow() {
			return a2aclient.Failure("Agent %s is unavailable: circuit open after repeated failures", allowed.URL)
		}
	}
	res = s.dispatch(ctx, mode, allowed, req)
	if breaker != nil {
		breaker.Record(unreachable(res))
	}
	return res
}

// dispatch performs the call in the given mode.
func (s *OutboundService) dispatch(ctx context.Context, mode string, allowed *agent.AllowedAgent, req CallRequest) a2aclient.Result {
	timeout := s.defaultTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	switch mode {
	case ModeTask:
		remoteBudget := s.taskTimeout.Milliseconds()
		if req.TimeoutMs > 0 {
			remoteBudget = req.TimeoutMs
		}
		return s.client.CreateTask(ctx, req.AgentURL, allowed.APIKey, a2aclient.TaskRequest{
			Message: req.Message,
			Timeout: remoteBudget,
			Context: req.Context,
		}, timeout)
	case ModeStream:
		return s.stream(ctx, allowed, req, timeout)
	default:
		res := s.client.SendMessage(ctx, a2aclient.MessageEndpoint(req.AgentURL, false), allowed.APIKey, a2aclient.MessageRequest{
			Message:   req.Message,
			Context:   req.Context,
			SessionID: req.SessionID,
		}, timeout)
		if res.SessionID == "" {
			res.SessionID = req.SessionID
		}
		return res
	}
}

// unreachable reports whether res means the agent itself is failing, as
// opposed to rejecting this particular request.
func unreachable(res a2aclient.Result) bool {
	return !res.Success && (res.TimedOut || res.StatusCode == 0 || res.StatusCode >= 500)
}

// PollTask fetches a remote task from its checkUrl, which must fall under
// an allowed agent.
func (s *OutboundService) PollTask(ctx context.Context, projectID, checkURL string) (res a2aclient.Result) {
	ctx, span := alotel.StartOutboundSpan(ctx, projectID, checkURL, ModePoll)
	defer span.End()
	defer s.finish(ctx, span, projectID, ModePoll, &res)

	if checkURL == "" {
		return a2aclient.Failure("checkUrl is required")
	}
	allowed, denied := s.resolve(ctx, projectID, checkURL)
	if denied != nil {
		return *denied
	}
	return s.client.GetTask(ctx, checkURL, allowed.APIKey, s.defaultTimeout)
}

// stream consumes the event stream within timeout. Each event is journaled
// when the request carries a session id. Data holds the events received,
// also on failure.
func (s *OutboundService) stream(ctx context.Context, allowed *agent.AllowedAgent, req CallRequest, timeout time.Duration) a2aclient.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workingDir := req.WorkingDir
	journal := s.history != nil && req.SessionID != ""

	events := make([]a2aclient.StreamEvent, 0)
	endpoint := a2aclient.MessageEndpoint(req.AgentURL, true)
	for ev, err := range s.client.Stream(ctx, endpoint, allowed.APIKey, a2aclient.MessageRequest{
		Message:   req.Message,
		Context:   req.Context,
		SessionID: req.SessionID,
	}) {
		if err != nil {
			res := a2aclient.Result{Data: events, SessionID: req.SessionID, Error: err.Error()}
			var status *a2aclient.StatusError
			switch {
			case errors.As(err, &status):
				res.StatusCode = status.Code
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				res.TimedOut = true
				res.Error = fmt.Sprintf("request to remote agent timed out after %s", timeout)
			}
			return res
		}
		events = append(events, ev)
		if journal {
			if err := s.history.Append(workingDir, req.SessionID, ev); err != nil {
				slog.WarnContext(ctx, "history append failed", "session_id", req.SessionID, "error", err)
			}
		}
	}
	if ctx.Err() != nil {
		return a2aclient.Result{
			Data:      events,
			SessionID: req.SessionID,
			TimedOut:  true,
			Error:     fmt.Sprintf("request to remote agent timed out after %s", timeout),
		}
	}
	return a2aclient.Result{Success: true, Data: events, SessionID: req.SessionID}
}

// journalDir resolves the history working directory for a call. A
// caller-supplied directory must lie inside the configured one; relative
// paths are taken from it.
func (s *OutboundService) journalDir(dir string) (string, error) {
	root := s.workingDir
	if root == "" {
		root = "."
	}
	if dir == "" {
		return root, nil
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve history directory: %w", err)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(rootAbs, dir)
	}
	rel, err := filepath.Rel(rootAbs, filepath.Clean(dir))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workingDirectory %s is outside the history directory", dir)
	}
	return filepath.Join(rootAbs, rel), nil
}

// resolve matches url against the project's enabled allowed agents. A
// disabled entry is indistinguishable from a missing one.
func (s *OutboundService) resolve(ctx context.Context, projectID, url string) (*agent.AllowedAgent, *a2aclient.Result) {
	cfg, found, err := s.projects.Load(ctx, projectID)
	if err != nil {
		res := a2aclient.Failure("failed to load A2A configuration for project %s: %v", projectID, err)
		return nil, &res
	}
	if !found {
		res := a2aclient.Failure("A2A configuration not found for project %s", projectID)
		return nil, &res
	}
	a, ok := cfg.Match(url)
	if !ok {
		res := a2aclient.Failure("Agent URL %s not found in allowed agents list", url)
		return nil, &res
	}
	cred, err := a.Credential(s.secrets)
	if err != nil {
		res := a2aclient.Failure("credentials for allowed agent %s unavailable: %v", a.Name, err)
		return nil, &res
	}
	resolved := *a
	resolved.APIKey = cred
	return &resolved, nil
}

// finish converts a panic into a failed result and records the outcome.
func (s *OutboundService) finish(ctx context.Context, span trace.Span, projectID, mode string, res *a2aclient.Result) {
	if r := recover(); r != nil {
		slog.ErrorContext(ctx, "outbound call panicked", "project_id", projectID, "mode", mode, "panic", r)
		*res = a2aclient.Failure("internal error: %v", r)
	}
	outcome := "success"
	if !res.Success {
		outcome = "failure"
		if res.TimedOut {
			outcome = "timeout"
		}
		span.SetStatus(codes.Error, res.Error)
	}
	if s.metrics != nil {
		s.metrics.OutboundCalls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		))
	}
}
