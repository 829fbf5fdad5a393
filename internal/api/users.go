package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// userSummary is the GET /users projection.
type userSummary struct {
	UID       int    `json:"uid"`
	Name      string `json:"name"`
	Privilege int    `json:"privilege"`
	UserID    string `json:"user_id"`
}

// userDetail is a full user without the password.
type userDetail struct {
	UID       int    `json:"uid"`
	Name      string `json:"name"`
	Privilege int    `json:"privilege"`
	UserID    string `json:"user_id"`
	GroupID   string `json:"group_id"`
	Card      int64  `json:"card"`
}

func toUserDetail(u terminal.UserRecord) userDetail {
	return userDetail{
		UID:       u.UID,
		Name:      u.Name,
		Privilege: u.Privilege,
		UserID:    u.UserID,
		GroupID:   u.GroupID,
		Card:      u.Card,
	}
}

// groupID accepts a JSON string or number. Clients send either.
type groupID string

func (g *groupID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = groupID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("group_id must be a string or number")
	}
	*g = groupID(n.String())
	return nil
}

// createUserRequest is the POST /users body.
type createUserRequest struct {
	UID       int     `json:"uid"`
	Name      string  `json:"name"`
	Privilege int     `json:"privilege"`
	Password  string  `json:"password"`
	GroupID   groupID `json:"group_id"`
	UserID    string  `json:"user_id"`
}

// updateUserRequest is the PUT /users/{uid} body. Absent fields are kept.
type updateUserRequest struct {
	Name      *string  `json:"name"`
	Privilege *int     `json:"privilege"`
	Password  *string  `json:"password"`
	GroupID   *groupID `json:"group_id"`
	UserID    *string  `json:"user_id"`
	Card      *int64   `json:"card"`
}

func (u updateUserRequest) patch() terminal.UserPatch {
	p := terminal.UserPatch{
		Name:      u.Name,
		Privilege: u.Privilege,
		Password:  u.Password,
		UserID:    u.UserID,
		Card:      u.Card,
	}
	if u.GroupID != nil {
		g := string(*u.GroupID)
		p.GroupID = &g
	}
	return p
}

// handleListUsers returns every user on the terminal.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	users, err := s.service.ListUsers(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{UID: u.UID, Name: u.Name, Privilege: u.Privilege, UserID: u.UserID})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetUser returns one user by uid.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := uidParam(w, r)
	if !ok {
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	u, err := s.service.GetUser(r.Context(), ep, uid)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDetail(u))
}

// handleCreateUser writes a user. An existing uid is overwritten.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	_, err = s.service.CreateUser(r.Context(), ep, terminal.UserCreate{
		UID:       req.UID,
		Name:      req.Name,
		Privilege: req.Privilege,
		Password:  req.Password,
		GroupID:   string(req.GroupID),
		UserID:    req.UserID,
	})
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// handleUpdateUser merges the body into the stored user.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := uidParam(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	u, err := s.service.UpdateUser(r.Context(), ep, uid, req.patch())
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"user":   toUserDetail(u),
	})
}

// handleDeleteUser removes a user by uid.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := uidParam(w, r)
	if !ok {
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	if err := s.service.DeleteUser(r.Context(), ep, uid); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "uid": uid})
}

// handleDeleteUserByUserID removes a user by its badge user id.
func (s *Server) handleDeleteUserByUserID(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	if err := s.service.DeleteUserByUserID(r.Context(), ep, userID); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "user_id": userID})
}

func uidParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "uid")
	uid, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("uid %q is not a number", raw))
		return 0, false
	}
	return uid, true
}
