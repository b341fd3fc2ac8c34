package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"mercator-hq/relay/pkg/config"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	Enabled bool

	// AllowedOrigins is a list of allowed origins for CORS.
	// Use ["*"] to allow all origins.
	AllowedOrigins []string

	// AllowedMethods is a list of allowed HTTP methods.
	AllowedMethods []string

	// AllowedHeaders is a list of allowed HTTP headers.
	AllowedHeaders []string

	// ExposedHeaders is a list of headers exposed to clients.
	ExposedHeaders []string

	// MaxAge is the maximum age (in seconds) for preflight cache.
	MaxAge int

	// AllowCredentials controls whether credentials are allowed.
	AllowCredentials bool
}

// DefaultCORSConfig returns a CORS configuration that lets any origin call
// the chat endpoint.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", "traceparent"},
		ExposedHeaders: []string{"X-Request-ID", "X-Trace-ID"},
		MaxAge:         3600, // 1 hour
	}
}

// NewCORSConfig builds the middleware configuration from the HTTP settings.
// Unset origins allow any origin.
func NewCORSConfig(cfg config.CORSConfig) *CORSConfig {
	c := DefaultCORSConfig()
	c.Enabled = cfg.Enabled
	if len(cfg.AllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.AllowedOrigins
	}
	if cfg.MaxAge > 0 {
		c.MaxAge = cfg.MaxAge
	}
	return c
}

// CORSMiddleware adds Cross-Origin Resource Sharing headers so a browser
// chat front-end served from another origin can call the relay. Preflight
// requests (OPTIONS with Access-Control-Request-Method) are answered with
// 204 and never reach the wrapped handler.
//
// Example usage:
//
//	handler = CORSMiddleware(NewCORSConfig(cfg.HTTP.CORS))(handler)
func CORSMiddleware(opts *CORSConfig) func(http.Handler) http.Handler {
	allowMethods := strings.Join(opts.AllowedMethods, ", ")
	allowHeaders := strings.Join(opts.AllowedHeaders, ", ")
	exposeHeaders := strings.Join(opts.ExposedHeaders, ", ")
	wildcard := contains(opts.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		if !opts.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
			case wildcard && !opts.AllowCredentials:
				h.Set("Access-Control-Allow-Origin", "*")
			case isOriginAllowed(origin, opts.AllowedOrigins):
				h.Set("Access-Control-Allow-Origin", origin)
				if opts.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			default:
				// Unknown origin: no CORS headers, the browser blocks the response.
				next.ServeHTTP(w, r)
				return
			}
			if exposeHeaders != "" {
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowMethods != "" {
					h.Set("Access-Control-Allow-Methods", allowMethods)
				}
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				}
				if opts.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(opts.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
