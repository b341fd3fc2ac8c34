// Package health provides liveness, readiness and version endpoints.
//
// Components register named checks; /ready runs them concurrently, each
// bounded by the checker timeout, and answers 503 when any fails.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("upstream", client.HealthCheck)
//	checker.Register(mux, health.VersionInfo{Version: "1.0.0"})
//
// # Endpoints
//
//   - /health: the process is running
//   - /ready: every registered check passes
//   - /version: build information
package health
