package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/agentlink/internal/adapter/a2aclient"
	almcp "github.com/Strob0t/agentlink/internal/adapter/mcp"
	"github.com/Strob0t/agentlink/internal/domain/apikey"
	"github.com/Strob0t/agentlink/internal/service"
)

// --- Mocks ---

type mockCaller struct {
	project  string
	call     service.CallRequest
	checkURL string
	result   a2aclient.Result
}

func (m *mockCaller) Call(_ context.Context, projectID string, req service.CallRequest) a2aclient.Result {
	m.project, m.call = projectID, req
	return m.result
}

func (m *mockCaller) PollTask(_ context.Context, projectID, checkURL string) a2aclient.Result {
	m.project, m.checkURL = projectID, checkURL
	return m.result
}

type mockValidator struct {
	key string
}

func (m mockValidator) ValidateAPIKey(_ context.Context, projectID, candidate string) (*apikey.Key, bool, error) {
	if projectID == "p1" && candidate == m.key {
		return &apikey.Key{ID: "k1", ProjectID: projectID}, true, nil
	}
	return nil, false, nil
}

func callTool(t *testing.T, s *almcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool := s.MCPServer().GetTool(name)
	if tool == nil {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

// --- Tests ---

func TestToolRegistration(t *testing.T) {
	s := almcp.NewServer(almcp.ServerConfig{Name: "test", Version: "0.1.0"}, almcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	for _, name := range []string{"call_a2a_agent", "poll_a2a_task"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleCallAgent(t *testing.T) {
	caller := &mockCaller{result: a2aclient.Result{Success: true, Data: map[string]any{"message": "hi"}}}
	s := almcp.NewServer(almcp.ServerConfig{Name: "test", Version: "0.1.0"}, almcp.ServerDeps{Agents: caller})

	result := callTool(t, s, "call_a2a_agent", map[string]any{
		"project_id": "p1",
		"agent_url":  "http://agent.test/a2a",
		"message":    "hello",
		"use_task":   true,
		"timeout":    float64(1500),
		"context":    map[string]any{"k": "v"},
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if caller.project != "p1" {
		t.Errorf("project = %q, want p1", caller.project)
	}
	if !caller.call.UseTask || caller.call.TimeoutMs != 1500 || caller.call.Context["k"] != "v" {
		t.Errorf("unexpected call %+v", caller.call)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var res a2aclient.Result
	if err := json.Unmarshal([]byte(text.Text), &res); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestHandleCallAgentFailureIsToolError(t *testing.T) {
	caller := &mockCaller{result: a2aclient.Failure("Agent URL %s not found in allowed agents list", "http://x")}
	s := almcp.NewServer(almcp.ServerConfig{Name: "test", Version: "0.1.0"}, almcp.ServerDeps{Agents: caller})

	result := callTool(t, s, "call_a2a_agent", map[string]any{
		"project_id": "p1",
		"agent_url":  "http://x",
		"message":    "hello",
	})
	if !result.IsError {
		t.Fatal("expected error result for failed call")
	}
}

func TestHandleMissingProject(t *testing.T) {
	s := almcp.NewServer(almcp.ServerConfig{Name: "test", Version: "0.1.0"}, almcp.ServerDeps{Agents: &mockCaller{}})

	result := callTool(t, s, "call_a2a_agent", map[string]any{"agent_url": "http://x", "message": "m"})
	if !result.IsError {
		t.Fatal("expected error result without a project")
	}
}

func TestHandlePollTask(t *testing.T) {
	caller := &mockCaller{result: a2aclient.Result{Success: true, Status: "running"}}
	s := almcp.NewServer(almcp.ServerConfig{Name: "test", Version: "0.1.0"}, almcp.ServerDeps{Agents: caller})

	result := callTool(t, s, "poll_a2a_task", map[string]any{"project_id": "p1", "check_url": "http://agent.test/tasks/1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if caller.checkURL != "http://agent.test/tasks/1" {
		t.Errorf("checkURL = %q", caller.checkURL)
	}

	result = callTool(t, s, "poll_a2a_task", map[string]any{"project_id": "p1"})
	if !result.IsError {
		t.Fatal("expected error result for missing check_url")
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := almcp.NewServer(almcp.ServerConfig{Name: "test", Version: "0.1.0"}, almcp.ServerDeps{})

	result := callTool(t, s, "poll_a2a_task", map[string]any{"project_id": "p1", "check_url": "http://x"})
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := almcp.AuthMiddleware(mockValidator{key: "a2a_secret"}, true, next)

	tests := []struct {
		name    string
		project string
		header  string
		value   string
		want    int
	}{
		{"no project", "", "X-API-Key", "a2a_secret", http.StatusBadRequest},
		{"no credentials", "p1", "", "", http.StatusUnauthorized},
		{"bearer", "p1", "Authorization", "Bearer a2a_secret", http.StatusNoContent},
		{"api key header", "p1", "X-API-Key", "a2a_secret", http.StatusNoContent},
		{"wrong key", "p1", "X-API-Key", "nope", http.StatusForbidden},
		{"wrong project", "p2", "X-API-Key", "a2a_secret", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.project != "" {
				req.Header.Set(almcp.ProjectHeader, tt.project)
			}
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	h := almcp.AuthMiddleware(nil, false, next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if !called {
		t.Fatal("expected pass-through when auth is disabled")
	}
}
