package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_UPSTREAM_API_KEY).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Socket server
	envString("RELAY_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("RELAY_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("RELAY_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("RELAY_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// HTTP surface
	if val := os.Getenv("RELAY_HTTP_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.HTTP.Enabled = &b
		}
	}
	envString("RELAY_HTTP_LISTEN_ADDRESS", &cfg.HTTP.ListenAddress)
	envBool("RELAY_HTTP_ADMIN_ENABLED", &cfg.HTTP.AdminEnabled)
	envBool("RELAY_HTTP_CORS_ENABLED", &cfg.HTTP.CORS.Enabled)

	// Upstream
	envString("RELAY_UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	envString("RELAY_UPSTREAM_MODEL", &cfg.Upstream.Model)
	envString("RELAY_UPSTREAM_API_KEY", &cfg.Upstream.APIKey)
	envString("RELAY_UPSTREAM_API_KEY_LOCATION", &cfg.Upstream.APIKeyLocation)
	envString("RELAY_UPSTREAM_RESPONSE_PATH", &cfg.Upstream.ResponsePath)
	envDuration("RELAY_UPSTREAM_ATTEMPT_TIMEOUT", &cfg.Upstream.AttemptTimeout)

	// Retry
	envInt("RELAY_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	envDuration("RELAY_RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)
	envDuration("RELAY_RETRY_JITTER", &cfg.Retry.Jitter)

	// Limits
	envInt("RELAY_LIMITS_MAX_MESSAGE_CHARS", &cfg.Limits.MaxMessageChars)
	envInt("RELAY_LIMITS_MAX_REQUEST_BYTES", &cfg.Limits.MaxRequestBytes)

	// Profile
	envString("RELAY_PROFILE_PERSONA", &cfg.Profile.Persona)
	envString("RELAY_PROFILE_KNOWLEDGE", &cfg.Profile.Knowledge)
	envString("RELAY_PROFILE_PERSONA_FILE", &cfg.Profile.PersonaFile)
	envString("RELAY_PROFILE_KNOWLEDGE_FILE", &cfg.Profile.KnowledgeFile)
	envBool("RELAY_PROFILE_WATCH", &cfg.Profile.Watch)

	// Telemetry
	envString("RELAY_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("RELAY_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	if val := os.Getenv("RELAY_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	envBool("RELAY_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("RELAY_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv("RELAY_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
