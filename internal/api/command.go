package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Nileneb/growdash/internal/agent"
	"github.com/Nileneb/growdash/internal/serial"
)

type commandRequest struct {
	// Port selects the serial session. Empty means the registry's
	// default port.
	Port    string          `json:"port,omitempty"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type commandResponse struct {
	Port   string       `json:"port"`
	Wire   string       `json:"wire"`
	Result agent.Result `json:"result"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd, err := agent.Decode(req.Kind, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrUnknownCommand):
			writeBadRequest(w, "unknown command kind: "+req.Kind)
		default:
			writeBadRequest(w, err.Error())
		}
		return
	}

	port := req.Port
	if port == "" {
		def, ok := s.deps.Registry.DefaultPort()
		if !ok {
			writeNotFound(w, "no serial port available")
			return
		}
		port = def
	}

	session, ok := s.deps.Supervisor.SessionFor(port)
	if !ok {
		writeNotFound(w, "no active session for port "+port)
		return
	}

	result, err := s.deps.Executor.Execute(session, cmd)
	if err != nil {
		switch {
		case errors.Is(err, serial.ErrRequestPending):
			writeConflict(w, "another command is in flight on "+port)
		case errors.Is(err, serial.ErrClosed):
			writeConflict(w, "session for "+port+" is closed")
		default:
			s.deps.Logger.Error("command failed", "port", port, "kind", req.Kind, "error", err)
			writeInternalError(w, "command failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{Port: port, Wire: cmd.Wire(), Result: result})
}
