// Package upstream performs single generation calls against the remote LLM
// endpoint and classifies each attempt.
//
// The Client is shared by every dispatch and safe for concurrent use. One call
// to Generate is exactly one HTTP attempt: retrying is the caller's business
// (see package retry). Every attempt ends in an Outcome:
//
//   - Success: the reply text was extracted from a 200 response. When the body
//     could not be read along the configured response path the text is a fixed
//     sentinel and Degraded is set.
//   - RetryableFailure: the endpoint answered 429 or 5xx.
//   - TerminalFailure: any other non-200 status. A bounded body snippet is kept
//     for diagnostics.
//   - TransportFailure: the call never produced a usable response (dial, TLS,
//     timeout, body read errors).
//
// The request body follows the Gemini generateContent shape:
//
//	{
//	  "contents": [{"role": "user", "parts": [{"text": "..."}]}],
//	  "systemInstruction": {"parts": [{"text": "..."}]}
//	}
//
// The API key travels in the "key" query parameter or the x-goog-api-key
// header. It is never logged; use RedactedEndpoint when a URL must appear in
// diagnostics.
package upstream
