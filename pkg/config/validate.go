package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateHTTP(&cfg.HTTP)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validateAddress("server.listen_address", cfg.ListenAddress)...)
	errs = append(errs, validateNonNegative("server.read_timeout", cfg.ReadTimeout)...)
	errs = append(errs, validateNonNegative("server.write_timeout", cfg.WriteTimeout)...)
	errs = append(errs, validateNonNegative("server.shutdown_timeout", cfg.ShutdownTimeout)...)

	return errs
}

func validateHTTP(cfg *HTTPConfig) []FieldError {
	if !cfg.IsEnabled() {
		return nil
	}

	var errs []FieldError

	errs = append(errs, validateAddress("http.listen_address", cfg.ListenAddress)...)
	errs = append(errs, validateNonNegative("http.read_timeout", cfg.ReadTimeout)...)
	errs = append(errs, validateNonNegative("http.write_timeout", cfg.WriteTimeout)...)
	errs = append(errs, validateNonNegative("http.idle_timeout", cfg.IdleTimeout)...)

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "http.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "http.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "http.cors.max_age",
			Message: "max age must be non-negative",
		})
	}

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: fmt.Sprintf("invalid URL format: %v", err),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: fmt.Sprintf("unsupported scheme %q (must be http or https)", u.Scheme),
		})
	}

	if strings.TrimSpace(cfg.Model) == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.model",
			Message: "model is required",
		})
	}

	// The API key may be empty here; it is commonly injected through
	// RELAY_UPSTREAM_API_KEY and checked when the client is built.

	switch cfg.APIKeyLocation {
	case APIKeyInQuery, APIKeyInHeader:
	default:
		errs = append(errs, FieldError{
			Field:   "upstream.api_key_location",
			Message: fmt.Sprintf("invalid location %q (must be %q or %q)", cfg.APIKeyLocation, APIKeyInQuery, APIKeyInHeader),
		})
	}

	if strings.TrimSpace(cfg.ResponsePath) == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.response_path",
			Message: "response path is required",
		})
	}

	if cfg.AttemptTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.attempt_timeout",
			Message: "attempt timeout must be positive",
		})
	}
	if cfg.SnippetLimit <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.snippet_limit",
			Message: "snippet limit must be positive",
		})
	}
	if cfg.MaxResponseBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_response_bytes",
			Message: "max response bytes must be positive",
		})
	}
	if cfg.MaxOutputTokens < 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_output_tokens",
			Message: "max output tokens must be non-negative",
		})
	}
	if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
		errs = append(errs, FieldError{
			Field:   "upstream.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	return errs
}

func validateRetry(cfg *RetryConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{
			Field:   "retry.max_attempts",
			Message: "max attempts must be at least 1",
		})
	}
	if cfg.MaxAttempts > 10 {
		errs = append(errs, FieldError{
			Field:   "retry.max_attempts",
			Message: "max attempts exceeds reasonable limit (10)",
		})
	}
	errs = append(errs, validateNonNegative("retry.base_delay", cfg.BaseDelay)...)
	errs = append(errs, validateNonNegative("retry.jitter", cfg.Jitter)...)

	return errs
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxMessageChars <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.max_message_chars",
			Message: "max message chars must be positive",
		})
	}
	if cfg.MaxRequestBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.max_request_bytes",
			Message: "max request bytes must be positive",
		})
	}
	// A request frame must at least hold a maximal ASCII message.
	if cfg.MaxMessageChars > 0 && cfg.MaxRequestBytes > 0 && cfg.MaxRequestBytes < cfg.MaxMessageChars {
		errs = append(errs, FieldError{
			Field:   "limits.max_request_bytes",
			Message: "max request bytes must be at least max message chars",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0 and 1",
		})
	}

	return errs
}

func validateAddress(field, addr string) []FieldError {
	if addr == "" {
		return []FieldError{{Field: field, Message: "listen address is required"}}
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return []FieldError{{Field: field, Message: fmt.Sprintf("invalid address %q: %v", addr, err)}}
	}
	return nil
}

func validateNonNegative(field string, d time.Duration) []FieldError {
	if d < 0 {
		return []FieldError{{Field: field, Message: "duration must not be negative"}}
	}
	return nil
}
