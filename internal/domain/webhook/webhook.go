// Package webhook defines push-notification targets and delivery results
// for task-completion callbacks.
package webhook

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Strob0t/agentlink/internal/domain"
)

// PushNotificationConfig is the callback target for a task.
type PushNotificationConfig struct {
	URL            string          `json:"url" yaml:"url"`
	Token          string          `json:"token,omitempty" yaml:"token"` //nolint:gosec // config field name, not a hardcoded secret
	Authentication *Authentication `json:"authentication,omitempty" yaml:"authentication"`
}

// Authentication is an explicit scheme/credentials pair. Only the first
// scheme is used when building the Authorization header.
type Authentication struct {
	Schemes     []string `json:"schemes" yaml:"schemes"`
	Credentials string   `json:"credentials,omitempty" yaml:"credentials"` //nolint:gosec // config field name
}

// Validate checks that the target URL is absolute http(s).
func (c *PushNotificationConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("push_notification.url is required: %w", domain.ErrValidation)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("push_notification.url must be an absolute http(s) URL: %w", domain.ErrValidation)
	}
	return nil
}

// AuthorizationHeader returns the Authorization header value, or "" when
// the target carries no credentials.
func (c *PushNotificationConfig) AuthorizationHeader() string {
	if a := c.Authentication; a != nil && len(a.Schemes) > 0 && a.Credentials != "" {
		return a.Schemes[0] + " " + a.Credentials
	}
	if c.Token != "" {
		return "Bearer " + c.Token
	}
	return ""
}

// Payload is the JSON body POSTed to the callback URL.
type Payload struct {
	TaskID    string    `json:"taskId"`
	Status    string    `json:"status"`
	Output    any       `json:"output,omitempty"`
	Error     any       `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Result reports the outcome of a delivery. Delivery never fails with a Go
// error; failures are described here.
type Result struct {
	Success    bool   `json:"success"`
	Attempts   int    `json:"attempts"`
	StatusCode int    `json:"statusCode,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`
	Error      string `json:"error,omitempty"`
}
