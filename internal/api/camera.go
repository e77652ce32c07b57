package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const mjpegBoundary = "frame"

func (s *Server) cameraKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.Camera == nil {
		writeNotFound(w, "camera support is not enabled")
		return "", false
	}
	device := r.URL.Query().Get("device")
	if device == "" {
		writeBadRequest(w, "device query parameter is required")
		return "", false
	}
	return device, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	device, ok := s.cameraKey(w, r)
	if !ok {
		return
	}

	frame, err := s.deps.Camera.Snapshot(device)
	if err != nil {
		s.deps.Logger.Error("snapshot failed", "device", device, "error", err)
		writeInternalError(w, "snapshot failed for "+device)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

// handleStream serves a multipart MJPEG stream until the client hangs up
// or the camera goes away. Each part is one JPEG frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	device, ok := s.cameraKey(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming is not supported by this connection")
		return
	}

	frames := s.deps.Camera.Stream(r.Context(), device)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range frames {
		_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame))
		if err == nil {
			_, err = w.Write(frame)
		}
		if err == nil {
			_, err = fmt.Fprint(w, "\r\n")
		}
		if err != nil {
			// Client disconnects surface here. Context cancellation
			// stops the producer goroutine.
			s.deps.Logger.Debug("stream write ended", "device", device, "error", err)
			return
		}
		flusher.Flush()
	}
}
