package upstream

import (
	"fmt"
	"time"
)

// UnreadableReplyText is returned as the reply when a 200 response does not
// contain text at the configured response path.
const UnreadableReplyText = "The AI service returned a response that could not be read."

// ChatRequest is the input of one generation call.
type ChatRequest struct {
	// Text is the user's message, already trimmed and length checked.
	Text string

	// SystemContext is sent as the system instruction. May be empty.
	SystemContext string
}

// OutcomeKind classifies an attempt.
type OutcomeKind int

const (
	// Success means reply text is available.
	Success OutcomeKind = iota

	// RetryableFailure is a 429 or 5xx answer.
	RetryableFailure

	// TerminalFailure is a non-retryable status such as 400 or 403.
	TerminalFailure

	// TransportFailure means no usable response was received.
	TransportFailure
)

// String returns the label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable"
	case TerminalFailure:
		return "terminal"
	case TransportFailure:
		return "transport"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result of a single attempt.
type Outcome struct {
	Kind OutcomeKind

	// Text is the extracted reply (Success only).
	Text string

	// Degraded is set when Text is UnreadableReplyText.
	Degraded bool

	// BodyBytes is the number of response body bytes read.
	BodyBytes int

	// StatusCode is the HTTP status, zero for transport failures.
	StatusCode int

	// Snippet holds the start of an error body (TerminalFailure only).
	Snippet string

	// Reason is a short diagnostic for failures.
	Reason string

	// Duration is how long the attempt took.
	Duration time.Duration
}

// Retryable reports whether another attempt may succeed.
func (o Outcome) Retryable() bool {
	return o.Kind == RetryableFailure || o.Kind == TransportFailure
}

// OK reports whether the attempt produced reply text.
func (o Outcome) OK() bool {
	return o.Kind == Success
}
