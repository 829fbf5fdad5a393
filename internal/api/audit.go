package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-access/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: filter by action (user.create, door.unlock, device.restart, ...)
//   - endpoint: filter by terminal endpoint, e.g. tcp://192.168.1.201:4370
//   - target: filter by target, e.g. user:5
//   - outcome: success or failure
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		Endpoint: q.Get("endpoint"),
		Target:   q.Get("target"),
		Outcome:  q.Get("outcome"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if filter.Outcome != "" && filter.Outcome != audit.OutcomeSuccess && filter.Outcome != audit.OutcomeFailure {
		writeBadRequest(w, "outcome must be success or failure")
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
