package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/agentlink/internal/adapter/a2aclient"
	"github.com/Strob0t/agentlink/internal/domain"
	"github.com/Strob0t/agentlink/internal/domain/agent"
	"github.com/Strob0t/agentlink/internal/domain/task"
	"github.com/Strob0t/agentlink/internal/port/agentsession"
	"github.com/Strob0t/agentlink/internal/port/projectconfig"
)

// RelayProvider opens sessions that forward task input to the project's
// allow-listed remote agent whose name equals the task's agentId.
type RelayProvider struct {
	projects projectconfig.Loader
	client   *a2aclient.Client
	secrets  SecretLookup
}

var _ agentsession.Provider = (*RelayProvider)(nil)

// NewRelayProvider creates a RelayProvider.
func NewRelayProvider(projects projectconfig.Loader, client *a2aclient.Client) *RelayProvider {
	return &RelayProvider{projects: projects, client: client}
}

// SetSecrets enables "secret:NAME" agent credentials.
func (p *RelayProvider) SetSecrets(lookup SecretLookup) {
	p.secrets = lookup
}

// Session resolves agentID against the project's enabled allowed agents.
func (p *RelayProvider) Session(ctx context.Context, projectID, agentID string) (agentsession.Session, error) {
	cfg, found, err := p.projects.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("A2A configuration for project %s: %w", projectID, domain.ErrNotFound)
	}
	for i := range cfg.AllowedAgents {
		a := cfg.AllowedAgents[i]
		if a.Enabled && a.Name == agentID {
			cred, err := a.Credential(p.secrets)
			if err != nil {
				return nil, err
			}
			a.APIKey = cred
			return &relaySession{client: p.client, agent: a}, nil
		}
	}
	return nil, fmt.Errorf("allowed agent %q: %w", agentID, domain.ErrNotFound)
}

type relaySession struct {
	client *a2aclient.Client
	agent  agent.AllowedAgent
}

// SendMessage relays synchronously; the deadline comes from ctx.
func (s *relaySession) SendMessage(ctx context.Context, in task.Input) (*task.Output, error) {
	res := s.client.SendMessage(ctx, a2aclient.MessageEndpoint(s.agent.URL, false), s.agent.APIKey, a2aclient.MessageRequest{
		Message: in.Message,
		Context: in.Context,
	}, 0)
	if !res.Success {
		if res.TimedOut && ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, errors.New(res.Error)
	}
	switch v := res.Data.(type) {
	case string:
		return &task.Output{Message: v}, nil
	case map[string]any:
		out := &task.Output{Data: v}
		if msg, ok := v["message"].(string); ok {
			out.Message = msg
		}
		return out, nil
	default:
		return &task.Output{Data: map[string]any{"response": v}}, nil
	}
}
