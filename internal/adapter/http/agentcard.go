package http

import (
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
)

// LegacyAgentCardPath is the pre-0.3 well-known location, still probed by
// older clients.
const LegacyAgentCardPath = "/.well-known/agent.json"

// CardInfo describes this engine in its published agent card.
type CardInfo struct {
	Name        string
	Description string
	URL         string
	Version     string
	AuthEnabled bool
}

// NewAgentCard builds the card advertised to A2A peers.
func NewAgentCard(info CardInfo) *a2a.AgentCard {
	card := &a2a.AgentCard{
		Name:               info.Name,
		Description:        info.Description,
		URL:                info.URL,
		Version:            info.Version,
		ProtocolVersion:    "0.3.0",
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		DefaultInputModes:  []string{"text/plain", "application/json"},
		DefaultOutputModes: []string{"application/json"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      true,
			StateTransitionHistory: true,
		},
		Skills: []a2a.AgentSkill{
			{
				ID:          "tasks",
				Name:        "Asynchronous tasks",
				Description: "Create, poll and cancel long-running agent tasks with webhook completion callbacks.",
				Tags:        []string{"tasks", "async"},
			},
			{
				ID:          "history",
				Name:        "Session history",
				Description: "Replay or live-tail the A2A event journal of a session.",
				Tags:        []string{"history", "streaming"},
			},
		},
	}
	if info.AuthEnabled {
		card.SecuritySchemes = a2a.NamedSecuritySchemes{
			"BearerAuth": a2a.HTTPAuthSecurityScheme{
				Scheme:       "bearer",
				BearerFormat: "a2a_ API key",
				Description:  "Project API key as Bearer token or X-API-Key header",
			},
		}
		card.Security = []a2a.SecurityRequirements{
			{"BearerAuth": a2a.SecuritySchemeScopes{}},
		}
	}
	return card
}

// AgentCardHandler serves card at its well-known paths.
func AgentCardHandler(card *a2a.AgentCard) http.Handler {
	return a2asrv.NewStaticAgentCardHandler(card)
}
