package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// timestampLayouts are accepted for POST /device/time.
var timestampLayouts = []string{
	terminal.TimestampLayout,
	time.DateTime,
	time.RFC3339,
}

// ─── Reads ──────────────────────────────────────────────────────────

// handleDeviceInfo returns the identity snapshot. Fields the terminal
// cannot report are null.
func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	info, err := s.service.DeviceInfo(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetDeviceTime(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	t, err := s.service.DeviceTime(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleNetworkParams(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	params, err := s.service.NetworkParams(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleMemoryUsage(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	usage, err := s.service.MemoryUsage(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// handleMemorySizes returns the same snapshot as /device/memory nested
// under memory_size.
func (s *Server) handleMemorySizes(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	usage, err := s.service.MemorySizes(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memory_size": usage})
}

// ─── Commands ───────────────────────────────────────────────────────

// handleSetDeviceTime sets the terminal clock from the timestamp query
// parameter or a {"timestamp": "..."} body. The time is read in the site
// timezone.
func (s *Server) handleSetDeviceTime(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("timestamp")
	if raw == "" {
		var body struct {
			Timestamp string `json:"timestamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
		raw = body.Timestamp
	}
	if raw == "" {
		writeBadRequest(w, "timestamp is required")
		return
	}
	ts, err := s.parseTimestamp(raw)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if err := s.service.SetDeviceTime(r.Context(), ep, ts); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.service.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("timestamp must look like 2006-01-02T15:04:05")
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if err := s.service.Restart(r.Context(), ep); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// handleUnlock opens the door for ?time seconds (default 3).
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	seconds, err := queryInt(r, "time", 3)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	transport, err := s.service.Unlock(r.Context(), ep, seconds)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "transport": transport})
}

// handleTestVoice plays voice prompt ?voice_id (default 1).
func (s *Server) handleTestVoice(w http.ResponseWriter, r *http.Request) {
	voiceID, err := queryInt(r, "voice_id", 1)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}

	transport, err := s.service.TestVoice(r.Context(), ep, voiceID)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"voice_id":  voiceID,
		"transport": transport,
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if err := s.service.Connect(r.Context(), ep); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "connected"})
}

// handleDisconnect opens a session and releases it. Sessions never outlive
// a request, so there is nothing else to disconnect.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	if err := s.service.Connect(r.Context(), ep); err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "disconnected"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	s.writeTerminalError(w, r, s.service.Toggle(r.Context(), ep))
}

// ─── Probes ─────────────────────────────────────────────────────────

// handleDeviceHealth reads the clock over tcp then udp. Unreachable
// terminals are reported in the body with status 200.
func (s *Server) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	rep, err := s.service.Health(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleDeviceStatus connects over tcp then udp and reports latency.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	ep, err := s.endpointFromRequest(r)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	rep, err := s.service.Status(r.Context(), ep)
	if err != nil {
		s.writeTerminalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
