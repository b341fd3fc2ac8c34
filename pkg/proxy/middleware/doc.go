// Package middleware provides HTTP middleware for the relay's HTTP surface.
//
// # Middleware Chain
//
//	handler = Recovery(Logging(RequestID(CORS(handler))))
//
// Order (innermost to outermost):
//  1. CORS: Cross-Origin Resource Sharing headers for browser front-ends
//  2. RequestID: generate or propagate X-Request-ID
//  3. Logging: one structured log line per request
//  4. Recovery: turn panics into a 500 with a JSON error body
//
// # Request ID
//
// RequestIDMiddleware honours a client supplied X-Request-ID (up to 128
// printable characters) and otherwise generates a UUID v4. The id is stored
// with logging.WithRequestID, so every log record written with the request
// context carries a request_id attribute.
package middleware
