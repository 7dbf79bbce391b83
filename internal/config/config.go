// Package config provides hierarchical configuration loading for agentlink.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the agentlink service.
type Config struct {
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Lock     Lock     `yaml:"lock"`
	Tasks    Tasks    `yaml:"tasks"`
	Webhook  Webhook  `yaml:"webhook"`
	Outbound Outbound `yaml:"outbound"`
	History  History  `yaml:"history"`
	Auth     Auth     `yaml:"auth"`
	NATS     NATS     `yaml:"nats"`
	OTEL     OTEL     `yaml:"otel"`
	Cache    Cache    `yaml:"cache"`
	Logging  Logging  `yaml:"logging"`
	MCP      MCP      `yaml:"mcp"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port            string        `yaml:"port"`
	PublicURL       string        `yaml:"public_url"` // base URL advertised in the agent card and checkUrls
	CORSOrigin      string        `yaml:"cors_origin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Storage holds the file-backed store location.
type Storage struct {
	DataDir string `yaml:"data_dir"`
}

// Lock holds lock-file acquisition policy shared by the task store and key registry.
type Lock struct {
	Retries    int           `yaml:"retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Tasks holds task lifecycle defaults.
type Tasks struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	Execute        bool          `yaml:"execute"`        // run tasks in-process via the agent session runtime
	MaxConcurrent  int           `yaml:"max_concurrent"` // 0: unbounded
}

// Webhook holds task-completion callback delivery policy.
type Webhook struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
}

// Outbound holds remote agent call defaults.
type Outbound struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	TaskTimeout    time.Duration `yaml:"task_timeout"` // timeout requested from the remote for task mode

	// BreakerFailures consecutive unreachable results open an agent's
	// circuit for BreakerCooldown. 0 disables the breaker.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// History holds session journal settings.
type History struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	WorkingDir   string        `yaml:"working_dir"` // default working directory for inbound history reads
}

// Auth holds inbound API key settings.
type Auth struct {
	Enabled    bool `yaml:"enabled"`
	BcryptCost int  `yaml:"bcrypt_cost"`
}

// NATS holds NATS JetStream configuration. An empty URL disables publishing.
type NATS struct {
	URL    string        `yaml:"url"`
	MaxAge time.Duration `yaml:"max_age"`
}

// OTEL holds OpenTelemetry export configuration. An empty endpoint disables export.
type OTEL struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Cache holds the in-process project config cache settings.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// MCP holds the agent tool server configuration.
type MCP struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			PublicURL:       "http://localhost:8080",
			CORSOrigin:      "*",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: Storage{
			DataDir: "./data",
		},
		Lock: Lock{
			Retries:    5,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   2 * time.Second,
			StaleAfter: 10 * time.Second,
		},
		Tasks: Tasks{
			DefaultTimeout: 300 * time.Second,
			MaxConcurrent:  8,
		},
		Webhook: Webhook{
			AttemptTimeout: 10 * time.Second,
			MaxRetries:     3,
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
		},
		Outbound: Outbound{
			DefaultTimeout:  30 * time.Second,
			TaskTimeout:     300 * time.Second,
			BreakerCooldown: 30 * time.Second,
		},
		History: History{
			PollInterval: 500 * time.Millisecond,
			WorkingDir:   ".",
		},
		Auth: Auth{
			Enabled:    true,
			BcryptCost: 10,
		},
		NATS: NATS{
			MaxAge: 24 * time.Hour,
		},
		OTEL: OTEL{
			ServiceName: "agentlink",
			Insecure:    true,
			SampleRate:  1,
		},
		Cache: Cache{
			MaxSizeMB: 16,
			TTL:       5 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentlink",
		},
		MCP: MCP{
			Enabled: true,
			Path:    "/mcp",
		},
	}
}
