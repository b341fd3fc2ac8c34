package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/relay/pkg/dispatch"
)

// RequestError describes a request body that could not be used.
// Kind is always a validation kind, so the client sees 400.
type RequestError struct {
	Message string
	Kind    dispatch.ErrorKind
	Err     error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ParseChatRequest reads a {"message": "..."} body of at most maxBytes
// bytes and returns the message. The message is not validated here; length
// and emptiness are the dispatcher's concern.
//
// Example usage:
//
//	msg, err := ParseChatRequest(w, r, 8192)
//	if err != nil {
//	    // 400 with {"error": "Malformed request"}
//	}
func ParseChatRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", &RequestError{
				Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
				Kind:    dispatch.BadRequest,
			}
		}
		return "", &RequestError{Message: "failed to read request body", Kind: dispatch.BadRequest, Err: err}
	}

	msg, err := dispatch.DecodeEnvelope(body)
	if err != nil {
		return "", &RequestError{Message: "invalid request body", Kind: dispatch.BadRequest, Err: err}
	}
	return msg, nil
}
