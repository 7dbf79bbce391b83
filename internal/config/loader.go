package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentlink.yaml"

// ConfigFileEnv overrides DefaultConfigFile.
const ConfigFileEnv = "AGENTLINK_CONFIG"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv(ConfigFileEnv); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTLINK_PORT")
	setString(&cfg.Server.PublicURL, "AGENTLINK_PUBLIC_URL")
	setString(&cfg.Server.CORSOrigin, "AGENTLINK_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "AGENTLINK_SHUTDOWN_TIMEOUT")

	setString(&cfg.Storage.DataDir, "AGENTLINK_DATA_DIR")

	setInt(&cfg.Lock.Retries, "AGENTLINK_LOCK_RETRIES")
	setDuration(&cfg.Lock.BaseDelay, "AGENTLINK_LOCK_BASE_DELAY")
	setDuration(&cfg.Lock.MaxDelay, "AGENTLINK_LOCK_MAX_DELAY")
	setDuration(&cfg.Lock.StaleAfter, "AGENTLINK_LOCK_STALE_AFTER")

	setDuration(&cfg.Tasks.DefaultTimeout, "AGENTLINK_TASK_DEFAULT_TIMEOUT")
	setBool(&cfg.Tasks.Execute, "AGENTLINK_TASK_EXECUTE")
	setInt(&cfg.Tasks.MaxConcurrent, "AGENTLINK_TASKS_MAX_CONCURRENT")

	// Webhook
	setDuration(&cfg.Webhook.AttemptTimeout, "AGENTLINK_WEBHOOK_ATTEMPT_TIMEOUT")
	setInt(&cfg.Webhook.MaxRetries, "AGENTLINK_WEBHOOK_MAX_RETRIES")
	setDuration(&cfg.Webhook.BaseDelay, "AGENTLINK_WEBHOOK_BASE_DELAY")
	setDuration(&cfg.Webhook.MaxDelay, "AGENTLINK_WEBHOOK_MAX_DELAY")

	// Outbound
	setDuration(&cfg.Outbound.DefaultTimeout, "AGENTLINK_OUTBOUND_TIMEOUT")
	setDuration(&cfg.Outbound.TaskTimeout, "AGENTLINK_OUTBOUND_TASK_TIMEOUT")
	setInt(&cfg.Outbound.BreakerFailures, "AGENTLINK_OUTBOUND_BREAKER_FAILURES")
	setDuration(&cfg.Outbound.BreakerCooldown, "AGENTLINK_OUTBOUND_BREAKER_COOLDOWN")

	setDuration(&cfg.History.PollInterval, "AGENTLINK_HISTORY_POLL_INTERVAL")
	setString(&cfg.History.WorkingDir, "AGENTLINK_HISTORY_WORKING_DIR")

	setBool(&cfg.Auth.Enabled, "AGENTLINK_AUTH_ENABLED")
	setInt(&cfg.Auth.BcryptCost, "AGENTLINK_BCRYPT_COST")

	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.MaxAge, "AGENTLINK_NATS_MAX_AGE")

	// Telemetry
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AGENTLINK_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "AGENTLINK_OTEL_SAMPLE_RATE")

	setInt64(&cfg.Cache.MaxSizeMB, "AGENTLINK_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "AGENTLINK_CACHE_TTL")

	setString(&cfg.Logging.Level, "AGENTLINK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTLINK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTLINK_LOG_ASYNC")

	setBool(&cfg.MCP.Enabled, "AGENTLINK_MCP_ENABLED")
	setString(&cfg.MCP.Path, "AGENTLINK_MCP_PATH")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.Lock.Retries < 0 {
		return errors.New("lock.retries must be >= 0")
	}
	if cfg.Lock.StaleAfter <= 0 {
		return errors.New("lock.stale_after must be > 0")
	}
	if cfg.Tasks.DefaultTimeout <= 0 {
		return errors.New("tasks.default_timeout must be > 0")
	}
	if cfg.Tasks.MaxConcurrent < 0 {
		return errors.New("tasks.max_concurrent must be >= 0")
	}
	if cfg.Webhook.MaxRetries < 0 {
		return errors.New("webhook.max_retries must be >= 0")
	}
	if cfg.Webhook.AttemptTimeout <= 0 {
		return errors.New("webhook.attempt_timeout must be > 0")
	}
	if cfg.Outbound.DefaultTimeout <= 0 {
		return errors.New("outbound.default_timeout must be > 0")
	}
	if cfg.Outbound.BreakerFailures < 0 {
		return errors.New("outbound.breaker_failures must be >= 0")
	}
	if cfg.Outbound.BreakerFailures > 0 && cfg.Outbound.BreakerCooldown <= 0 {
		return errors.New("outbound.breaker_cooldown must be > 0 when the breaker is enabled")
	}
	if cfg.History.PollInterval <= 0 {
		return errors.New("history.poll_interval must be > 0")
	}
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		return errors.New("mcp.path must start with /")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
