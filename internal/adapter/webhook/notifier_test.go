package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
)

func fastOptions() Options {
	return Options{AttemptTimeout: time.Second, MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestSendTaskCompletion_Success(t *testing.T) {
	var got webhook.Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(fastOptions(), srv.Client())
	res := n.SendTaskCompletion(context.Background(),
		webhook.PushNotificationConfig{URL: srv.URL, Token: "secret"},
		"t-1", task.StatusCompleted, &task.Output{Message: "done"}, nil)

	if !res.Success || res.Attempts != 1 || res.StatusCode != http.StatusNoContent {
		t.Fatalf("result = %+v", res)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Authorization = %q", auth)
	}
	if got.TaskID != "t-1" || got.Status != "completed" || got.Output == nil || got.Error != nil {
		t.Fatalf("payload = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp missing")
	}
}

func TestSendTaskCompletion_ErrorPayloadAndSchemeAuth(t *testing.T) {
	var raw map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&raw)
	}))
	defer srv.Close()

	cfg := webhook.PushNotificationConfig{
		URL:            srv.URL,
		Authentication: &webhook.Authentication{Schemes: []string{"ApiKey"}, Credentials: "abc"},
	}
	res := NewNotifier(fastOptions(), nil).SendTaskCompletion(context.Background(), cfg,
		"t-2", task.StatusFailed, nil, &task.ErrorDetails{Message: "boom", Code: task.CodeAgentError})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if auth != "ApiKey abc" {
		t.Fatalf("Authorization = %q", auth)
	}
	if _, ok := raw["output"]; ok {
		t.Fatal("output must be omitted on failure")
	}
	errObj, ok := raw["error"].(map[string]any)
	if !ok || errObj["code"] != task.CodeAgentError {
		t.Fatalf("error = %v", raw["error"])
	}
}

func TestSendTaskCompletion_FailsTwiceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := NewNotifier(fastOptions(), nil).SendTaskCompletion(context.Background(),
		webhook.PushNotificationConfig{URL: srv.URL}, "t", task.StatusCompleted, nil, nil)
	if !res.Success || res.Attempts != 3 {
		t.Fatalf("result = %+v, want success after 3 attempts", res)
	}
	if res.Error != "" {
		t.Fatalf("error should be empty on success: %q", res.Error)
	}
}

func TestSendTaskCompletion_AlwaysFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := fastOptions()
	res := NewNotifier(opts, nil).SendTaskCompletion(context.Background(),
		webhook.PushNotificationConfig{URL: srv.URL}, "t", task.StatusFailed, nil, nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1+opts.MaxRetries || int(calls.Load()) != 1+opts.MaxRetries {
		t.Fatalf("attempts = %d, calls = %d, want %d", res.Attempts, calls.Load(), 1+opts.MaxRetries)
	}
	if res.StatusCode != http.StatusInternalServerError || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSendTaskCompletion_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := Options{AttemptTimeout: 20 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond}
	res := NewNotifier(opts, nil).SendTaskCompletion(context.Background(),
		webhook.PushNotificationConfig{URL: srv.URL}, "t", task.StatusCompleted, nil, nil)
	if res.Success || !res.TimedOut || res.Attempts != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSendTaskCompletion_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := fastOptions()
	opts.MaxRetries = 1
	res := NewNotifier(opts, nil).SendTaskCompletion(context.Background(),
		webhook.PushNotificationConfig{URL: url}, "t", task.StatusCompleted, nil, nil)
	if res.Success || res.Attempts != 2 || res.TimedOut {
		t.Fatalf("result = %+v", res)
	}
}
