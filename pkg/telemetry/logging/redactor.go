package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks secrets in log values.
type Redactor struct {
	patterns []*redactPattern
	secrets  []string
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternGoogleAPIKey = "google_api_key"
	PatternQueryKey     = "query_key"
	PatternBearerToken  = "bearer_token"
	PatternKeyAssign    = "key_assignment"
)

const mask = "***"

// NewRedactor creates a Redactor with the built-in patterns. Each non-empty
// secret is also masked wherever it appears verbatim.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" {
			r.secrets = append(r.secrets, s)
		}
	}

	defaults := []struct {
		name        string
		regex       string
		replacement string
	}{
		// Google API keys are 39 characters starting with AIza.
		{PatternGoogleAPIKey, `AIza[0-9A-Za-z_\-]{20,}`, "AIza" + mask},
		// ?key=... or &key=... in URLs
		{PatternQueryKey, `([?&]key=)[^&\s"]+`, "${1}" + mask},
		{PatternBearerToken, `(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer " + mask},
		{PatternKeyAssign, `(?i)(api[-_]?key|x-goog-api-key)(["']?\s*[:=]\s*["']?)[^\s"',&]+`, "${1}${2}" + mask},
	}
	for _, p := range defaults {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	return r
}

// RedactString masks secrets in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, s := range r.secrets {
		redacted = strings.ReplaceAll(redacted, s, mask)
	}
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// RedactAttr masks an attribute. Values under sensitive keys are replaced
// entirely; other string values are scanned for secrets.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if isSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, mask)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "secret", "token",
		"api_key", "apikey", "api-key",
		"authorization", "credential",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactingHandler is a slog.Handler that masks secrets before passing
// records on.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewRedactingHandler wraps next with r.
func NewRedactingHandler(next slog.Handler, r *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: r}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return mask
	}
	return apiKey[:4] + mask
}
