package api

import (
	"net/http"
	"strconv"

	"github.com/Nileneb/growdash/internal/events"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeNotFound(w, "event journal is not enabled")
		return
	}

	f := events.Filter{
		Type: r.URL.Query().Get("type"),
		Port: r.URL.Query().Get("port"),
	}
	var err error
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if f.Offset, err = intQuery(r, "offset"); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.deps.Journal.List(r.Context(), f)
	if err != nil {
		s.deps.Logger.Error("event list failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
