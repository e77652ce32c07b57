package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/devices", s.handleListDevices)
		r.Post("/devices/refresh", s.handleRefreshDevices)
		r.Get("/ports", s.handleListPorts)
		r.Get("/sessions", s.handleListSessions)

		r.Post("/command", s.handleCommand)
		r.Get("/logs", s.handleLogs)
		r.Get("/events", s.handleListEvents)

		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/stream.mjpg", s.handleStream)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.deps.Version,
	})
}
