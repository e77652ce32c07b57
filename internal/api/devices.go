package api

import (
	"net/http"

	"github.com/Nileneb/growdash/internal/registry"
	"github.com/Nileneb/growdash/internal/supervisor"
)

type deviceListResponse struct {
	Devices []registry.Entry `json:"devices"`
	Count   int              `json:"count"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Registry.All()
	writeJSON(w, http.StatusOK, deviceListResponse{Devices: entries, Count: len(entries)})
}

// handleRefreshDevices rebuilds the registry from a fresh bus scan. The
// rebuild is destructive, so a scan failure can drop entries for ports
// that are still physically present. Partial failures still return the
// rebuilt inventory alongside the error message.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Registry.Refresh(r.Context())
	entries := s.deps.Registry.All()
	if err != nil {
		s.deps.Logger.Warn("registry refresh failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"devices": entries,
			"count":   len(entries),
			"warning": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, deviceListResponse{Devices: entries, Count: len(entries)})
}

type portListResponse struct {
	Ports       []registry.Entry `json:"ports"`
	DefaultPort string           `json:"default_port,omitempty"`
}

func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	resp := portListResponse{Ports: s.deps.Registry.SerialPorts()}
	if port, ok := s.deps.Registry.DefaultPort(); ok {
		resp.DefaultPort = port
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionListResponse struct {
	Sessions []supervisor.HandleInfo `json:"sessions"`
	Count    int                     `json:"count"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	handles := s.deps.Supervisor.Handles()
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: handles, Count: len(handles)})
}
