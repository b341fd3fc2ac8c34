// Package server runs the relay's two listeners.
//
// ConnectionServer is the line protocol front-ends speak: a client connects,
// writes one request line, reads one reply line and the connection closes.
// Every connection is served by its own goroutine, so a slow upstream for
// one client never delays accepting or answering another.
//
// HTTPServer exposes the same chat contract as POST /v1/chat next to the
// operational endpoints (/health, /ready, /version, /metrics) and the
// optional /admin/profile editor.
//
// Both servers stop gracefully: Shutdown stops accepting, waits for
// in-flight requests up to the configured timeout and then aborts the rest.
package server
