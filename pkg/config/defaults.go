package config

import "time"

// Default values for configuration fields.
const (
	// Socket server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// HTTP surface defaults
	DefaultHTTPListenAddress = "127.0.0.1:8081"
	DefaultHTTPReadTimeout   = 30 * time.Second
	DefaultHTTPWriteTimeout  = 90 * time.Second
	DefaultHTTPIdleTimeout   = 120 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB

	// Upstream defaults
	DefaultUpstreamBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultUpstreamModel       = "gemini-1.5-flash"
	DefaultAPIKeyLocation      = APIKeyInQuery
	DefaultResponsePath        = "candidates.0.content.parts.0.text"
	DefaultAttemptTimeout      = 10 * time.Second
	DefaultSnippetLimit        = 200
	DefaultMaxResponseBytes    = int64(1048576) // 1MB
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second

	// Retry defaults
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultJitter      = 500 * time.Millisecond

	// Limits defaults
	DefaultMaxMessageChars = 500
	DefaultMaxRequestBytes = 8192

	// Profile defaults
	DefaultPersona          = "A professional and friendly AI assistant."
	DefaultKnowledge        = "General knowledge enabled."
	DefaultRule             = "Answer any question flexibly."
	DefaultDebounceInterval = 100 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "relay"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "relay"
)

// API key placement options.
const (
	APIKeyInQuery  = "query"
	APIKeyInHeader = "header"
)

// ApplyDefaults fills in zero-valued fields with their defaults.
// Fields already set are left untouched.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyHTTPDefaults(&cfg.HTTP)
	applyUpstreamDefaults(&cfg.Upstream)
	applyRetryDefaults(&cfg.Retry)
	applyLimitsDefaults(&cfg.Limits)
	applyProfileDefaults(&cfg.Profile)
	applyTelemetryDefaults(&cfg.Telemetry)
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyHTTPDefaults(h *HTTPConfig) {
	if h.ListenAddress == "" {
		h.ListenAddress = DefaultHTTPListenAddress
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = DefaultHTTPReadTimeout
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = DefaultHTTPWriteTimeout
	}
	if h.IdleTimeout == 0 {
		h.IdleTimeout = DefaultHTTPIdleTimeout
	}
	if h.MaxHeaderBytes == 0 {
		h.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}

func applyUpstreamDefaults(u *UpstreamConfig) {
	if u.BaseURL == "" {
		u.BaseURL = DefaultUpstreamBaseURL
	}
	if u.Model == "" {
		u.Model = DefaultUpstreamModel
	}
	if u.APIKeyLocation == "" {
		u.APIKeyLocation = DefaultAPIKeyLocation
	}
	if u.ResponsePath == "" {
		u.ResponsePath = DefaultResponsePath
	}
	if u.AttemptTimeout == 0 {
		u.AttemptTimeout = DefaultAttemptTimeout
	}
	if u.SnippetLimit == 0 {
		u.SnippetLimit = DefaultSnippetLimit
	}
	if u.MaxResponseBytes == 0 {
		u.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if u.MaxIdleConns == 0 {
		u.MaxIdleConns = DefaultMaxIdleConns
	}
	if u.MaxIdleConnsPerHost == 0 {
		u.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if u.IdleConnTimeout == 0 {
		u.IdleConnTimeout = DefaultIdleConnTimeout
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = DefaultBaseDelay
	}
	if r.Jitter == 0 {
		r.Jitter = DefaultJitter
	}
}

func applyLimitsDefaults(l *LimitsConfig) {
	if l.MaxMessageChars == 0 {
		l.MaxMessageChars = DefaultMaxMessageChars
	}
	if l.MaxRequestBytes == 0 {
		l.MaxRequestBytes = DefaultMaxRequestBytes
	}
}

func applyProfileDefaults(p *ProfileConfig) {
	// Inline text only defaults when no file replaces it.
	if p.Persona == "" && p.PersonaFile == "" {
		p.Persona = DefaultPersona
	}
	if p.Knowledge == "" && p.KnowledgeFile == "" {
		p.Knowledge = DefaultKnowledge
	}
	if p.Rule == "" {
		p.Rule = DefaultRule
	}
	if p.DebounceInterval == 0 {
		p.DebounceInterval = DefaultDebounceInterval
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
}
