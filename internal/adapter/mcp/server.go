// Package mcp exposes the outbound A2A client to agents as Model Context
// Protocol tools over streamable HTTP.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentlink/internal/adapter/a2aclient"
	"github.com/Strob0t/agentlink/internal/middleware"
	"github.com/Strob0t/agentlink/internal/port/historylog"
	"github.com/Strob0t/agentlink/internal/service"
)

// ServerConfig holds MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
}

// AgentCaller performs allow-listed calls to remote agents.
type AgentCaller interface {
	Call(ctx context.Context, projectID string, req service.CallRequest) a2aclient.Result
	PollTask(ctx context.Context, projectID, checkURL string) a2aclient.Result
}

// ServerDeps holds the services the tools and resources delegate to.
// A nil field disables what depends on it.
type ServerDeps struct {
	Agents     AgentCaller
	History    historylog.Log
	HistoryDir string
}

// Server wraps the mcp-go server with agentlink's tools.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for tests and stdio transports.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP endpoint. Callers name their project
// in the X-Project-ID header and authenticate with one of its API keys.
func (s *Server) Handler(keys middleware.KeyValidator, authEnabled bool) http.Handler {
	h := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return withProject(ctx, r.Header.Get(ProjectHeader))
		}),
	)
	return AuthMiddleware(keys, authEnabled, h)
}
