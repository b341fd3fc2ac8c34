package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(NewDefaultConfig()); err != nil {
		t.Errorf("expected default config to pass validation, got error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	// Nothing applied: empty addresses, zero limits, empty model...
	err := Validate(&Config{})
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	validationErr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Errors) < 2 {
		t.Errorf("expected multiple errors, got %d", len(validationErr.Errors))
	}
	if !strings.Contains(validationErr.Error(), "validation failed with") {
		t.Errorf("error message should mention multiple errors: %s", validationErr.Error())
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		errorField string
	}{
		{
			name:       "bad listen address",
			mutate:     func(c *Config) { c.Server.ListenAddress = "localhost" },
			errorField: "server.listen_address",
		},
		{
			name: "disabled http skips http validation",
			mutate: func(c *Config) {
				off := false
				c.HTTP.Enabled = &off
				c.HTTP.ListenAddress = "nonsense"
			},
		},
		{
			name:       "unsupported upstream scheme",
			mutate:     func(c *Config) { c.Upstream.BaseURL = "ftp://example.test" },
			errorField: "upstream.base_url",
		},
		{
			name:       "empty model",
			mutate:     func(c *Config) { c.Upstream.Model = " " },
			errorField: "upstream.model",
		},
		{
			name:       "invalid key location",
			mutate:     func(c *Config) { c.Upstream.APIKeyLocation = "cookie" },
			errorField: "upstream.api_key_location",
		},
		{
			name:       "non-positive attempt timeout",
			mutate:     func(c *Config) { c.Upstream.AttemptTimeout = -time.Second },
			errorField: "upstream.attempt_timeout",
		},
		{
			name: "temperature out of range",
			mutate: func(c *Config) {
				temp := 3.0
				c.Upstream.Temperature = &temp
			},
			errorField: "upstream.temperature",
		},
		{
			name:       "zero attempts",
			mutate:     func(c *Config) { c.Retry.MaxAttempts = 0 },
			errorField: "retry.max_attempts",
		},
		{
			name:       "too many attempts",
			mutate:     func(c *Config) { c.Retry.MaxAttempts = 11 },
			errorField: "retry.max_attempts",
		},
		{
			name:       "negative jitter",
			mutate:     func(c *Config) { c.Retry.Jitter = -time.Millisecond },
			errorField: "retry.jitter",
		},
		{
			name:       "frame smaller than message",
			mutate:     func(c *Config) { c.Limits.MaxRequestBytes = 100 },
			errorField: "limits.max_request_bytes",
		},
		{
			name:       "invalid log format",
			mutate:     func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			errorField: "telemetry.logging.format",
		},
		{
			name:       "tracing without endpoint",
			mutate:     func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			errorField: "telemetry.tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.errorField == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error for field %s", tt.errorField)
			}
			if !strings.Contains(err.Error(), tt.errorField) {
				t.Errorf("expected error to mention %s, got: %v", tt.errorField, err)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if single.Error() != "configuration validation failed: a: bad" {
		t.Errorf("unexpected single error message: %q", single.Error())
	}

	empty := ValidationError{}
	if empty.Error() != "configuration validation failed" {
		t.Errorf("unexpected empty error message: %q", empty.Error())
	}
}
