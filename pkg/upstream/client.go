package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"mercator-hq/relay/pkg/config"
)

// apiKeyHeader carries the key when api_key_location is "header".
const apiKeyHeader = "x-goog-api-key"

// Client calls the remote generation endpoint. It is safe for concurrent use;
// all fields are read-only after construction except health.
type Client struct {
	// client is the HTTP client with connection pooling
	client *http.Client

	endpoint       string
	apiKey         string
	keyInHeader    bool
	path           responsePath
	generation     *geminiGenerationConfig
	attemptTimeout time.Duration
	snippetLimit   int
	maxBody        int64

	logger *slog.Logger

	// health tracks consecutive failures across attempts
	health   Health
	healthMu sync.RWMutex
}

// NewClient creates a client with a pooled transport from cfg.
// A nil logger uses slog.Default().
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Field: "api_key", Message: "API key is required"}
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, &ConfigError{Field: "base_url", Message: fmt.Sprintf("invalid URL %q", cfg.BaseURL)}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &ConfigError{Field: "model", Message: "model is required"}
	}

	path := parseResponsePath(cfg.ResponsePath)
	if len(path) == 0 {
		return nil, &ConfigError{Field: "response_path", Message: "response path is empty"}
	}

	var keyInHeader bool
	switch cfg.APIKeyLocation {
	case "", config.APIKeyInQuery:
	case config.APIKeyInHeader:
		keyInHeader = true
	default:
		return nil, &ConfigError{Field: "api_key_location", Message: fmt.Sprintf("unsupported location %q", cfg.APIKeyLocation)}
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = config.DefaultAttemptTimeout
	}
	snippetLimit := cfg.SnippetLimit
	if snippetLimit <= 0 {
		snippetLimit = config.DefaultSnippetLimit
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxResponseBytes
	}

	var gen *geminiGenerationConfig
	if cfg.MaxOutputTokens > 0 || cfg.Temperature != nil {
		gen = &geminiGenerationConfig{
			MaxOutputTokens: cfg.MaxOutputTokens,
			Temperature:     cfg.Temperature,
		}
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		// Each attempt carries its own deadline via context.
		client: &http.Client{
			Transport: transport,
			// A redirect would resend the key to another host; 3xx is terminal.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		endpoint:       base.String() + "/models/" + url.PathEscape(cfg.Model) + ":generateContent",
		apiKey:         cfg.APIKey,
		keyInHeader:    keyInHeader,
		path:           path,
		generation:     gen,
		attemptTimeout: attemptTimeout,
		snippetLimit:   snippetLimit,
		maxBody:        maxBody,
		logger:         logger,
		health: Health{
			IsHealthy:   true, // Start optimistic
			LastCheck:   time.Now(),
			LastSuccess: time.Now(),
		},
	}

	return c, nil
}

// RedactedEndpoint returns the request URL without the API key.
func (c *Client) RedactedEndpoint() string {
	return c.endpoint
}

// Generate performs exactly one attempt and classifies it.
// It never returns an error; every failure is described by the Outcome.
func (c *Client) Generate(ctx context.Context, req ChatRequest) Outcome {
	start := time.Now()
	o := c.attempt(ctx, req)
	o.Duration = time.Since(start)
	c.record(o)

	c.logger.Debug("upstream attempt finished",
		"endpoint", c.endpoint,
		"outcome", o.Kind.String(),
		"status", o.StatusCode,
		"body_bytes", o.BodyBytes,
		"duration", o.Duration,
	)
	return o
}

func (c *Client) attempt(ctx context.Context, req ChatRequest) Outcome {
	body, err := buildRequestBody(req, c.generation)
	if err != nil {
		return Outcome{Kind: TerminalFailure, Reason: fmt.Sprintf("failed to encode request: %v", err)}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.requestURL(), bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: TerminalFailure, Reason: c.redact(fmt.Sprintf("failed to create request: %v", err))}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.keyInHeader {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Outcome{Kind: TransportFailure, Reason: c.describeTransportError(err)}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		if readErr != nil {
			return Outcome{
				Kind:       TransportFailure,
				StatusCode: resp.StatusCode,
				BodyBytes:  len(data),
				Reason:     c.describeTransportError(readErr),
			}
		}
		o := Outcome{Kind: Success, StatusCode: resp.StatusCode, BodyBytes: len(data)}
		if text, ok := c.path.extract(data); ok {
			o.Text = text
		} else {
			o.Text = UnreadableReplyText
			o.Degraded = true
			c.logger.Warn("upstream response has no text at response path",
				"response_path", c.path.String(),
				"body_bytes", len(data),
			)
		}
		return o

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Outcome{
			Kind:       RetryableFailure,
			StatusCode: resp.StatusCode,
			BodyBytes:  len(data),
			Reason:     fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}

	default:
		return Outcome{
			Kind:       TerminalFailure,
			StatusCode: resp.StatusCode,
			BodyBytes:  len(data),
			Snippet:    c.redact(truncateRunes(string(data), c.snippetLimit)),
			Reason:     fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}
	}
}

func (c *Client) requestURL() string {
	if c.keyInHeader {
		return c.endpoint
	}
	return c.endpoint + "?" + url.Values{"key": {c.apiKey}}.Encode()
}

// describeTransportError renders err without the API key. *url.Error embeds
// the full request URL, query string included.
func (c *Client) describeTransportError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("timeout after %s", c.attemptTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return c.redact(err.Error())
}

func (c *Client) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	s = strings.ReplaceAll(s, c.apiKey, "[REDACTED]")
	return strings.ReplaceAll(s, url.QueryEscape(c.apiKey), "[REDACTED]")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// truncateRunes returns at most n runes of s, never splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
