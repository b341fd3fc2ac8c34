package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/relay/pkg/dispatch"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and answers
// 500 with {"error": "Server error occurred"}. The panic and stack trace are
// logged; neither reaches the client.
//
// Example usage:
//
//	handler = RecoveryMiddleware(logger)(handler)
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write(dispatch.EncodeJSONReply(dispatch.Failure(dispatch.InternalError)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
