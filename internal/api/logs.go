package api

import (
	"net/http"
	"strconv"

	"github.com/Nileneb/growdash/internal/serial"
)

type logResponse struct {
	Port  string        `json:"port"`
	Lines []serial.Line `json:"lines"`
	// Cursor is the sequence number to pass as since on the next poll.
	Cursor uint64 `json:"cursor"`
}

// handleLogs drains buffered session output newer than the since cursor.
// Clients poll with the returned cursor to tail a device without
// re-reading lines.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	port := r.URL.Query().Get("port")
	if port == "" {
		writeBadRequest(w, "port query parameter is required")
		return
	}

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "since must be a non-negative integer")
			return
		}
		since = v
	}

	session, ok := s.deps.Supervisor.SessionFor(port)
	if !ok {
		writeNotFound(w, "no active session for port "+port)
		return
	}

	lines, cursor := session.LogSince(since)
	if lines == nil {
		lines = []serial.Line{}
	}
	writeJSON(w, http.StatusOK, logResponse{Port: port, Lines: lines, Cursor: cursor})
}
