// Package proxy holds the HTTP framing of the chat contract: parsing a
// {"message": "..."} request body and writing {"reply": ...} or
// {"error": ...} responses with the matching status code.
//
// Status mapping:
//
//   - success: 200
//   - EmptyMessage, MessageTooLong, BadRequest: 400
//   - UpstreamError: 502
//   - InternalError: 500
//
// Handlers live in the handlers subpackage and middleware in middleware.
package proxy
