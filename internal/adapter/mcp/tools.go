package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentlink/internal/adapter/a2aclient"
	"github.com/Strob0t/agentlink/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.callAgentTool(),
		s.pollTaskTool(),
	)
}

func (s *Server) callAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("call_a2a_agent",
		mcplib.WithDescription("Send a message to an allow-listed remote A2A agent. "+
			"Returns the reply, or a task id and checkUrl when use_task is set."),
		mcplib.WithString("agent_url",
			mcplib.Required(),
			mcplib.Description("Endpoint of the remote agent; must match the project's allow-list"),
		),
		mcplib.WithString("message",
			mcplib.Required(),
			mcplib.Description("Message to send"),
		),
		mcplib.WithBoolean("use_task",
			mcplib.Description("Create an asynchronous task instead of waiting for the reply"),
		),
		mcplib.WithBoolean("stream",
			mcplib.Description("Collect the reply as a server-sent event stream"),
		),
		mcplib.WithNumber("timeout",
			mcplib.Description("Timeout in milliseconds"),
		),
		mcplib.WithString("session_id",
			mcplib.Description("Session whose history journal records streamed events"),
		),
		mcplib.WithString("working_directory",
			mcplib.Description("Directory holding the session history journal, inside the server history directory"),
		),
		mcplib.WithObject("context",
			mcplib.Description("Free-form context forwarded with the message"),
		),
		mcplib.WithString("project_id",
			mcplib.Description("Project whose allow-list applies, when not set by the connection"),
		),
		mcplib.WithOpenWorldHintAnnotation(true),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCallAgent,
	}
}

func (s *Server) pollTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("poll_a2a_task",
		mcplib.WithDescription("Fetch the current state of a remote task by its checkUrl"),
		mcplib.WithString("check_url",
			mcplib.Required(),
			mcplib.Description("The checkUrl returned when the task was created"),
		),
		mcplib.WithString("project_id",
			mcplib.Description("Project whose allow-list applies, when not set by the connection"),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handlePollTask,
	}
}

func (s *Server) handleCallAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent caller not configured"), nil
	}
	projectID := toolProject(ctx, req)
	if projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}

	call := service.CallRequest{
		AgentURL:   req.GetString("agent_url", ""),
		Message:    req.GetString("message", ""),
		UseTask:    req.GetBool("use_task", false),
		Stream:     req.GetBool("stream", false),
		TimeoutMs:  int64(req.GetFloat("timeout", 0)),
		SessionID:  req.GetString("session_id", ""),
		WorkingDir: req.GetString("working_directory", ""),
	}
	if c, ok := req.GetArguments()["context"].(map[string]any); ok {
		call.Context = c
	}
	return toolResult(s.deps.Agents.Call(ctx, projectID, call)), nil
}

func (s *Server) handlePollTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent caller not configured"), nil
	}
	projectID := toolProject(ctx, req)
	if projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	checkURL, err := req.RequireString("check_url")
	if err != nil || checkURL == "" {
		return mcplib.NewToolResultError("check_url is required"), nil
	}
	return toolResult(s.deps.Agents.PollTask(ctx, projectID, checkURL)), nil
}

// toolProject prefers the project bound to the connection over the argument.
func toolProject(ctx context.Context, req mcplib.CallToolRequest) string { //nolint:gocritic // hugeParam: mcp-go request type
	if p := projectFromContext(ctx); p != "" {
		return p
	}
	return req.GetString("project_id", "")
}

// toolResult renders an outbound result as JSON text, flagged as an error
// when the call did not succeed.
func toolResult(res a2aclient.Result) *mcplib.CallToolResult {
	data, err := json.Marshal(res)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	out := toolResultJSON(string(data))
	out.IsError = !res.Success
	return out
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
