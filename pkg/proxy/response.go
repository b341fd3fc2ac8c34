package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/relay/pkg/dispatch"
)

// StatusForReply maps a dispatch reply to an HTTP status code.
func StatusForReply(reply dispatch.Reply) int {
	switch reply.Kind {
	case dispatch.KindNone:
		return http.StatusOK
	case dispatch.EmptyMessage, dispatch.MessageTooLong, dispatch.BadRequest:
		return http.StatusBadRequest
	case dispatch.UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteReply writes reply as {"reply": ...} or {"error": ...} with the
// status from StatusForReply.
func WriteReply(w http.ResponseWriter, reply dispatch.Reply) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForReply(reply))
	if _, err := w.Write(dispatch.EncodeJSONReply(reply)); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

// WriteJSONResponse writes data as JSON with the given status code.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes {"error": message} with the given status code.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSONResponse(w, statusCode, map[string]string{"error": message})
}

// MethodNotAllowed answers 405 with an Allow header.
func MethodNotAllowed(w http.ResponseWriter, allow string) error {
	w.Header().Set("Allow", allow)
	return WriteErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
}
