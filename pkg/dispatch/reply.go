package dispatch

// ErrorKind classifies a failed dispatch.
type ErrorKind int

const (
	// KindNone marks a successful reply.
	KindNone ErrorKind = iota
	// EmptyMessage means the message was empty after trimming.
	EmptyMessage
	// MessageTooLong means the message exceeded the character limit.
	MessageTooLong
	// BadRequest means the client framing could not be parsed.
	BadRequest
	// UpstreamError means the upstream failed terminally or retries ran out.
	UpstreamError
	// InternalError means the dispatcher itself failed.
	InternalError
)

// String returns the snake_case name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case EmptyMessage:
		return "empty_message"
	case MessageTooLong:
		return "message_too_long"
	case BadRequest:
		return "bad_request"
	case UpstreamError:
		return "upstream_error"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Message returns the client-visible text for the kind.
// It never contains upstream bodies or credentials.
func (k ErrorKind) Message() string {
	switch k {
	case EmptyMessage:
		return "Message cannot be empty"
	case MessageTooLong:
		return "Message too long"
	case BadRequest:
		return "Malformed request"
	case UpstreamError:
		return "The AI service is unavailable right now, please try again later"
	default:
		return "Server error occurred"
	}
}

// Reply is the result of a dispatch. Exactly one of Text or Kind is set:
// Kind is KindNone on success.
type Reply struct {
	Text   string
	Kind   ErrorKind
	Detail string
}

// OK reports whether the reply carries generated text.
func (r Reply) OK() bool {
	return r.Kind == KindNone
}

// Success returns a reply carrying text.
func Success(text string) Reply {
	return Reply{Text: text}
}

// Failure returns a failed reply of the given kind. Detail is the
// client-visible message for kind.
func Failure(kind ErrorKind) Reply {
	return Reply{Kind: kind, Detail: kind.Message()}
}
