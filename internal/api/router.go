package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Gateway liveness (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Use(s.authMiddleware)

			// Reads
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermTerminalRead))

				r.Get("/users", s.handleListUsers)
				r.Get("/users/{uid}", s.handleGetUser)

				r.Get("/attendance", s.handleListAttendance)
				r.Get("/attendance/today", s.handleAttendanceToday)
				r.Get("/attendance/month", s.handleAttendanceMonth)
				r.Get("/attendance/{user_id}/{date}", s.handleUserAttendanceOnDate)

				r.Get("/device/info", s.handleDeviceInfo)
				r.Get("/device/time", s.handleGetDeviceTime)
				r.Get("/device/network", s.handleNetworkParams)
				r.Get("/device/memory", s.handleMemoryUsage)
				r.Get("/device/memory/size", s.handleMemorySizes)
				r.Get("/device/health", s.handleDeviceHealth)
				r.Get("/device/status", s.handleDeviceStatus)
				r.Post("/device/connect", s.handleConnect)
				r.Post("/device/disconnect", s.handleDisconnect)
			})

			// User, clock and door commands
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermTerminalOperate))

				r.Post("/users", s.handleCreateUser)
				r.Put("/users/{uid}", s.handleUpdateUser)
				r.Delete("/users/{uid}", s.handleDeleteUser)
				r.Delete("/users/by_user_id/{user_id}", s.handleDeleteUserByUserID)

				r.Post("/device/time", s.handleSetDeviceTime)
				r.Post("/device/unlock", s.handleUnlock)
				r.Post("/device/test-voice", s.handleTestVoice)
				r.Post("/device/toggle", s.handleToggle)
			})

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermTerminalAdmin))

				r.Get("/device/restart", s.handleRestart)
				r.Post("/device/restart", s.handleRestart)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
