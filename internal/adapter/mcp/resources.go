package mcp

import (
	"context"
	"encoding/json"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const historyURIPrefix = "a2a://history/"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			historyURIPrefix+"{sessionId}",
			"Session History",
			mcplib.WithTemplateDescription("A2A events journaled for a session, in append order"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleHistoryResource,
	)
}

func (s *Server) handleHistoryResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.History == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"history not configured"}`,
			},
		}, nil
	}
	sessionID := strings.TrimPrefix(req.Params.URI, historyURIPrefix)
	events, err := s.deps.History.Get(s.deps.HistoryDir, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
