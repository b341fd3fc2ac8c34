package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"server.listen_address", cfg.Server.ListenAddress, DefaultListenAddress},
		{"server.read_timeout", cfg.Server.ReadTimeout, DefaultReadTimeout},
		{"http.listen_address", cfg.HTTP.ListenAddress, DefaultHTTPListenAddress},
		{"upstream.base_url", cfg.Upstream.BaseURL, DefaultUpstreamBaseURL},
		{"upstream.model", cfg.Upstream.Model, DefaultUpstreamModel},
		{"upstream.api_key_location", cfg.Upstream.APIKeyLocation, APIKeyInQuery},
		{"upstream.response_path", cfg.Upstream.ResponsePath, DefaultResponsePath},
		{"upstream.snippet_limit", cfg.Upstream.SnippetLimit, 200},
		{"retry.max_attempts", cfg.Retry.MaxAttempts, 5},
		{"retry.base_delay", cfg.Retry.BaseDelay, time.Second},
		{"retry.jitter", cfg.Retry.Jitter, 500 * time.Millisecond},
		{"limits.max_message_chars", cfg.Limits.MaxMessageChars, 500},
		{"profile.persona", cfg.Profile.Persona, DefaultPersona},
		{"profile.rule", cfg.Profile.Rule, DefaultRule},
		{"telemetry.logging.level", cfg.Telemetry.Logging.Level, "info"},
		{"telemetry.metrics.namespace", cfg.Telemetry.Metrics.Namespace, "relay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}

	if !cfg.HTTP.IsEnabled() {
		t.Error("expected HTTP surface enabled by default")
	}
	if !cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("expected metrics enabled by default")
	}
	if !cfg.Telemetry.Logging.RedactEnabled() {
		t.Error("expected redaction enabled by default")
	}
}

func TestApplyDefaults_ProfileFilesSuppressInlineDefaults(t *testing.T) {
	cfg := &Config{
		Profile: ProfileConfig{
			PersonaFile:   "persona.txt",
			KnowledgeFile: "knowledge.txt",
		},
	}
	ApplyDefaults(cfg)

	if cfg.Profile.Persona != "" {
		t.Errorf("expected no inline persona when a file is set, got %q", cfg.Profile.Persona)
	}
	if cfg.Profile.Knowledge != "" {
		t.Errorf("expected no inline knowledge when a file is set, got %q", cfg.Profile.Knowledge)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{ListenAddress: "0.0.0.0:7000"},
		Retry:  RetryConfig{MaxAttempts: 2},
	}

	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("explicit value overwritten: %q", cfg.Server.ListenAddress)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Errorf("explicit value overwritten: %d", cfg.Retry.MaxAttempts)
	}
	if first.Upstream != cfg.Upstream {
		t.Error("second ApplyDefaults changed upstream config")
	}
}
