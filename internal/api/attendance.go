package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// handleListAttendance returns attendance punches.
//
// Query parameters:
//   - user_id: only this user's punches
//   - date: only punches on YYYY-MM-DD in the site timezone
func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := terminal.AttendanceFilter{UserID: q.Get("user_id")}
	if v := q.Get("date"); v != "" {
		d, err := terminal.ParseDate(v)
		if err != nil {
			s.writeTerminalError(w, r, err)
			return
		}
		filter.On = &d
	}

	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	events, err := s.service.ListAttendance(r.Context(), ep, filter)
	s.writeAttendance(w, r, events, err)
}

// handleAttendanceToday returns today's punches.
func (s *Server) handleAttendanceToday(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	events, err := s.service.AttendanceToday(r.Context(), ep)
	s.writeAttendance(w, r, events, err)
}

// handleAttendanceMonth returns punches since the first of the previous month.
func (s *Server) handleAttendanceMonth(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	events, err := s.service.AttendanceMonth(r.Context(), ep)
	s.writeAttendance(w, r, events, err)
}

func (s *Server) writeAttendance(w http.ResponseWriter, r *http.Request, events []terminal.AttendanceEvent, err error) {
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if events == nil {
		events = []terminal.AttendanceEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleUserAttendanceOnDate returns one user's punches on one date.
func (s *Server) handleUserAttendanceOnDate(w http.ResponseWriter, r *http.Request) {
	d, err := terminal.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	events, err := s.service.ListAttendance(r.Context(), ep, terminal.AttendanceFilter{
		UserID: chi.URLParam(r, "user_id"),
		On:     &d,
	})
	s.writeAttendance(w, r, events, err)
}
