// Package handlers provides the HTTP endpoint handlers of the relay.
//
//   - ChatHandler: POST /v1/chat, the HTTP framing of the chat contract
//   - ProfileHandler: GET and PUT /admin/profile, runtime persona and
//     knowledge base edits
//
// Health, readiness and metrics endpoints live in the telemetry packages.
package handlers
