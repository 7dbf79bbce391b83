package a2aclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendMessage_ResponseField(t *testing.T) {
	var gotAuth string
	var gotBody MessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"pong","sessionId":"s-9"}`))
	}))
	defer srv.Close()

	res := New(srv.Client()).SendMessage(context.Background(), srv.URL+"/messages", "k1",
		MessageRequest{Message: "ping", SessionID: "s-9"}, time.Second)
	if !res.Success || res.Data != "pong" || res.SessionID != "s-9" {
		t.Fatalf("result = %+v", res)
	}
	if gotAuth != "Bearer k1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody.Message != "ping" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestSendMessage_WholeBodyWithoutResponseField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"x"}`))
	}))
	defer srv.Close()

	res := New(nil).SendMessage(context.Background(), srv.URL, "", MessageRequest{Message: "m"}, time.Second)
	m, ok := res.Data.(map[string]any)
	if !res.Success || !ok || m["reply"] != "x" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSendMessage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
		code    int
	}{
		{
			name: "remote error field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
			},
			wantErr: "remote agent returned HTTP 403: invalid api key",
			code:    http.StatusForbidden,
		},
		{
			name: "nested error message",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"bad input"}}`))
			},
			wantErr: "remote agent returned HTTP 400: bad input",
			code:    http.StatusBadRequest,
		},
		{
			name: "plain body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "upstream down", http.StatusBadGateway)
			},
			wantErr: "remote agent returned HTTP 502: upstream down",
			code:    http.StatusBadGateway,
		},
		{
			name: "malformed 2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>ok</html>`))
			},
			wantErr: "malformed response from remote agent",
			code:    http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			res := New(nil).SendMessage(context.Background(), srv.URL, "", MessageRequest{Message: "m"}, time.Second)
			if res.Success || res.TimedOut {
				t.Fatalf("result = %+v", res)
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Fatalf("error = %q, want %q", res.Error, tt.wantErr)
			}
			if res.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.code)
			}
		})
	}
}

func TestSendMessage_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := New(nil).SendMessage(context.Background(), srv.URL, "", MessageRequest{Message: "m"}, 20*time.Millisecond)
	if res.Success || !res.TimedOut || !strings.Contains(res.Error, "timed out") {
		t.Fatalf("result = %+v", res)
	}
}

func TestSendMessage_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New(nil).SendMessage(context.Background(), url, "", MessageRequest{Message: "m"}, time.Second)
	if res.Success || res.TimedOut || !strings.Contains(res.Error, "request to remote agent failed") {
		t.Fatalf("result = %+v", res)
	}
}

func TestCreateTask(t *testing.T) {
	var gotPath string
	var gotBody TaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"taskId":"t-1","status":"pending","checkUrl":"/a2a/p/tasks/t-1"}`))
	}))
	defer srv.Close()

	res := New(nil).CreateTask(context.Background(), srv.URL+"/a2a/p", "k", TaskRequest{Message: "go", Timeout: 60000}, time.Second)
	if !res.Success || res.TaskID != "t-1" || res.Status != "pending" {
		t.Fatalf("result = %+v", res)
	}
	data, _ := res.Data.(map[string]any)
	if data["checkUrl"] != "/a2a/p/tasks/t-1" {
		t.Fatalf("data = %v", res.Data)
	}
	if gotPath != "/a2a/p/tasks" || gotBody.Timeout != 60000 {
		t.Fatalf("path = %q, body = %+v", gotPath, gotBody)
	}
}

func TestCreateTask_MissingTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	res := New(nil).CreateTask(context.Background(), srv.URL, "", TaskRequest{Message: "go"}, time.Second)
	if res.Success || !strings.Contains(res.Error, "missing taskId") {
		t.Fatalf("result = %+v", res)
	}
}

func TestGetTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"id":"t-1","status":"running","progress":{"state":"working"}}`))
	}))
	defer srv.Close()

	res := New(nil).GetTask(context.Background(), srv.URL+"/tasks/t-1", "", time.Second)
	if !res.Success || res.TaskID != "t-1" || res.Status != "running" {
		t.Fatalf("result = %+v", res)
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stream") != "true" {
			t.Errorf("stream query missing: %s", r.URL)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := range 3 {
			_, _ = fmt.Fprintf(w, "data: {\"chunk\":%d}\n\n", i)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	var got []string
	for ev, err := range New(nil).Stream(context.Background(), MessageEndpoint(srv.URL, true), "k", MessageRequest{Message: "m"}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got = append(got, string(ev.Data))
	}
	if strings.Join(got, ",") != `{"chunk":0},{"chunk":1},{"chunk":2}` {
		t.Fatalf("events = %v", got)
	}
}

func TestStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"no"}`))
	}))
	defer srv.Close()

	var errs []error
	for _, err := range New(nil).Stream(context.Background(), srv.URL, "", MessageRequest{Message: "m"}) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || errs[0] == nil || !strings.Contains(errs[0].Error(), "HTTP 401") {
		t.Fatalf("errs = %v", errs)
	}
}
