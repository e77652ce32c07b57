package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nileneb/growdash/internal/serial"
)

const (
	wsPollInterval = 250 * time.Millisecond
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsLogMessage is one batch of session output pushed to the client.
type wsLogMessage struct {
	Port   string        `json:"port"`
	Lines  []serial.Line `json:"lines"`
	Cursor uint64        `json:"cursor"`
}

// handleWebSocket pushes new session log lines to the client as they
// arrive. The connection closes when the session goes away or the
// client disconnects. Inbound messages are read only to service
// close and pong frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	port := r.URL.Query().Get("port")
	if port == "" {
		writeBadRequest(w, "port query parameter is required")
		return
	}
	if _, ok := s.deps.Supervisor.SessionFor(port); !ok {
		writeNotFound(w, "no active session for port "+port)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || isAllowedOrigin(origin, s.deps.Config.API.CORS.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.deps.Logger.Debug("websocket upgrade failed", "port", port, "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.deps.Logger.Debug("websocket client connected", "port", port)

	poll := time.NewTicker(wsPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	var cursor uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-poll.C:
			session, ok := s.deps.Supervisor.SessionFor(port)
			if !ok {
				deadline := time.Now().Add(wsWriteTimeout)
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			lines, next := session.LogSince(cursor)
			if len(lines) == 0 {
				cursor = next
				continue
			}
			cursor = next
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsLogMessage{Port: port, Lines: lines, Cursor: cursor}); err != nil {
				s.deps.Logger.Debug("websocket write failed", "port", port, "error", err)
				return
			}
		}
	}
}
