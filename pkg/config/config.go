package config

import "time"

// Config is the root configuration structure for the relay.
// It contains the socket server, the HTTP surface, the upstream LLM endpoint,
// the retry policy, request limits, the assistant profile, and telemetry.
type Config struct {
	// Server configures the line-oriented socket server that chat front-ends
	// connect to.
	Server ServerConfig `yaml:"server"`

	// HTTP configures the HTTP surface (chat endpoint, health, metrics, admin).
	HTTP HTTPConfig `yaml:"http"`

	// Upstream configures the remote generation endpoint.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Retry configures how transient upstream failures are retried.
	Retry RetryConfig `yaml:"retry"`

	// Limits contains per-request size and length limits.
	Limits LimitsConfig `yaml:"limits"`

	// Profile contains the persona and knowledge base sent as system context.
	Profile ProfileConfig `yaml:"profile"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the socket server.
type ServerConfig struct {
	// ListenAddress is the TCP address the socket server binds to.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds how long the server waits for the request line.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds how long writing the reply line may take.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is how long in-flight connections are given to finish
	// during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// HTTPConfig contains configuration for the HTTP surface.
type HTTPConfig struct {
	// Enabled controls whether the HTTP surface is started.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// ListenAddress is the address and port for the HTTP surface.
	// Default: "127.0.0.1:8081"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover the worst-case retry budget of a dispatch.
	// Default: 90s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// AdminEnabled exposes GET/PUT /admin/profile.
	// Default: false
	AdminEnabled bool `yaml:"admin_enabled"`

	// CORS configures cross-origin access for browser front-ends.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// Enabled adds CORS headers to HTTP responses.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists the origins allowed to call the relay.
	// Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxAge is how long, in seconds, browsers may cache a preflight answer.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// IsEnabled reports whether the HTTP surface should be started.
func (c HTTPConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// UpstreamConfig contains configuration for the remote generation endpoint.
type UpstreamConfig struct {
	// BaseURL is the API root, without the model path.
	// Default: "https://generativelanguage.googleapis.com/v1beta"
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier placed in the request path.
	// Default: "gemini-1.5-flash"
	Model string `yaml:"model"`

	// APIKey is the opaque token passed on every call.
	// Prefer RELAY_UPSTREAM_API_KEY over storing it in the file.
	APIKey string `yaml:"api_key"`

	// APIKeyLocation selects how the token is sent: "query" (key=...) or
	// "header" (x-goog-api-key).
	// Default: "query"
	APIKeyLocation string `yaml:"api_key_location"`

	// ResponsePath is the dot-separated path of the generated text in the
	// response body. Numeric segments index arrays.
	// Default: "candidates.0.content.parts.0.text"
	ResponsePath string `yaml:"response_path"`

	// AttemptTimeout bounds a single upstream call.
	// Default: 10s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// MaxOutputTokens is forwarded as generationConfig.maxOutputTokens when set.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Temperature is forwarded as generationConfig.temperature when set.
	Temperature *float64 `yaml:"temperature"`

	// SnippetLimit caps the number of characters of an error body kept for
	// diagnostics.
	// Default: 200
	SnippetLimit int `yaml:"snippet_limit"`

	// MaxResponseBytes caps how much of a response body is read.
	// Default: 1048576 (1MB)
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// MaxIdleConns is the maximum number of idle connections in the pool.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long an idle connection remains in the pool.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RetryConfig contains retry policy configuration.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay unit doubled on every attempt.
	// Default: 1s
	BaseDelay time.Duration `yaml:"base_delay"`

	// Jitter is the width of the random window added to each delay.
	// Default: 500ms
	Jitter time.Duration `yaml:"jitter"`
}

// LimitsConfig contains per-request limits.
type LimitsConfig struct {
	// MaxMessageChars is the maximum message length in characters after trimming.
	// Default: 500
	MaxMessageChars int `yaml:"max_message_chars"`

	// MaxRequestBytes bounds the raw request frame (line or HTTP body).
	// Default: 8192
	MaxRequestBytes int `yaml:"max_request_bytes"`
}

// ProfileConfig contains the assistant persona and knowledge base.
// File paths, when set, take precedence over the inline text.
type ProfileConfig struct {
	// Persona describes who the assistant is.
	// Default: "A professional and friendly AI assistant."
	Persona string `yaml:"persona"`

	// Knowledge is free-form text the assistant may rely on.
	// Default: "General knowledge enabled."
	Knowledge string `yaml:"knowledge"`

	// Rule is the behavioural instruction appended to the system context.
	// Default: "Answer any question flexibly."
	Rule string `yaml:"rule"`

	// PersonaFile is an optional file whose contents replace Persona.
	PersonaFile string `yaml:"persona_file"`

	// KnowledgeFile is an optional file whose contents replace Knowledge.
	KnowledgeFile string `yaml:"knowledge_file"`

	// Watch reloads the profile when the files change.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload is triggered.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Redact masks API keys and tokens in log attributes.
	// Default: true
	Redact *bool `yaml:"redact"`
}

// RedactEnabled reports whether log redaction is on.
func (c LoggingConfig) RedactEnabled() bool {
	return c.Redact == nil || *c.Redact
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are collected.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service name in traces.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`
}
