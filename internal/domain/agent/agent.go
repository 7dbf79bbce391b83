// Package agent defines the per-project A2A configuration: which remote
// agents may be called and with what credentials.
package agent

import (
	"fmt"
	"strings"

	"github.com/Strob0t/agentlink/internal/domain"
	"github.com/Strob0t/agentlink/internal/domain/webhook"
)

// AllowedAgent is one allow-list entry. URL is matched as a prefix.
type AllowedAgent struct {
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey"` //nolint:gosec // config field name, not a hardcoded secret
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// SecretRefPrefix marks an APIKey that names a secret instead of holding it.
const SecretRefPrefix = "secret:"

// Credential returns the bearer token to present to the agent. A
// "secret:NAME" reference is looked up; an unresolvable one is an error.
func (a *AllowedAgent) Credential(lookup func(name string) (string, bool)) (string, error) {
	name, isRef := strings.CutPrefix(a.APIKey, SecretRefPrefix)
	if !isRef {
		return a.APIKey, nil
	}
	if lookup != nil {
		if v, ok := lookup(name); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("secret %q for agent %q is not set: %w", name, a.Name, domain.ErrNotFound)
}

// ProjectConfig is the A2A configuration of one project.
type ProjectConfig struct {
	AllowedAgents    []AllowedAgent                  `json:"allowedAgents" yaml:"allowedAgents"`
	PushNotification *webhook.PushNotificationConfig `json:"pushNotification,omitempty" yaml:"pushNotification"`
}

// Validate checks the allow-list entries.
func (c *ProjectConfig) Validate() error {
	for i, a := range c.AllowedAgents {
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("allowedAgents[%d].url is required: %w", i, domain.ErrValidation)
		}
	}
	if c.PushNotification != nil {
		return c.PushNotification.Validate()
	}
	return nil
}

// Match returns the first enabled entry whose URL is a prefix of agentURL.
// Disabled entries never match.
func (c *ProjectConfig) Match(agentURL string) (*AllowedAgent, bool) {
	for i := range c.AllowedAgents {
		a := &c.AllowedAgents[i]
		if a.Enabled && a.URL != "" && strings.HasPrefix(agentURL, a.URL) {
			return a, true
		}
	}
	return nil, false
}
