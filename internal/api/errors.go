package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// Error is the failure envelope.
type Error struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Error{Error: message})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}

// statusForKind maps a terminal error kind to an HTTP status.
// Connectivity, auth and operation failures all flatten to 500.
func statusForKind(k terminal.Kind) int {
	switch k {
	case terminal.KindNotFound:
		return http.StatusNotFound
	case terminal.KindUnsupported:
		return http.StatusNotImplemented
	case terminal.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeTerminalError writes err with the status its kind maps to. Server
// side failures are logged with the request ID.
func (s *Server) writeTerminalError(w http.ResponseWriter, r *http.Request, err error) {
	kind := terminal.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.logger.Warn("terminal operation failed",
			"path", r.URL.Path,
			"kind", kind.String(),
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeError(w, status, err.Error())
}
