// Package serial implements the line-oriented request/response protocol
// spoken by the attached microcontrollers.
//
// The wire format is newline-terminated ASCII in both directions with
// no message IDs: correlation is purely ordinal, the next line received
// after a write is taken as the reply. An unsolicited line emitted by
// the firmware between a command and its true reply is therefore
// misattributed as the response. This is a known protocol limitation
// inherited from the device firmware; fixing it requires a firmware
// protocol change, so callers must tolerate occasionally receiving a
// telemetry line where a reply was expected.
package serial

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal logging interface the session needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Line is one unsolicited line captured in the session's log ring,
// tagged with a strictly increasing sequence number.
type Line struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session owns exactly one open serial handle and its reader loop.
//
// Incoming lines are delivered to the single outstanding request if one
// exists, otherwise appended to a bounded log ring (oldest dropped past
// the cap). The session does not self-heal a broken handle; the
// supervising layer is responsible for close and reopen.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but only one
//     SendAndWait may be outstanding at a time.
type Session struct {
	portName string
	port     io.ReadWriteCloser
	logger   Logger
	logCap   int

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   chan string

	logMu sync.Mutex
	ring  []Line
	seq   uint64

	closeOnce  sync.Once
	done       chan struct{}
	readerDone chan struct{}
	closeErr   error
}

// NewSession wraps an already-open port handle and starts the reader
// loop. logCap bounds the unsolicited log ring; zero or negative uses
// the default of 2048 lines.
func NewSession(portName string, port io.ReadWriteCloser, logCap int) *Session {
	if logCap <= 0 {
		logCap = 2048
	}
	s := &Session{
		portName:   portName,
		port:       port,
		logger:     noopLogger{},
		logCap:     logCap,
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// SetLogger sets the logger. A nil logger restores the no-op default.
func (s *Session) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// Port returns the device path this session is bound to.
func (s *Session) Port() string {
	return s.portName
}

// readLoop reads raw chunks, splits them into newline-terminated lines
// and routes each one. The port's read timeout (if configured) makes
// Read return (0, nil) periodically so the stop signal is observed.
func (s *Session) readLoop() {
	defer close(s.readerDone)

	buf := make([]byte, 512)
	var partial bytes.Buffer

	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			partial.Write(buf[:n])
			for {
				raw := partial.Bytes()
				idx := bytes.IndexByte(raw, '\n')
				if idx < 0 {
					break
				}
				line := strings.TrimRight(string(raw[:idx]), "\r")
				partial.Next(idx + 1)
				if line != "" {
					s.deliver(line)
				}
			}
		}
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("serial read failed, reader stopping", "port", s.portName, "error", err)
			}
			return
		}
	}
}

// deliver hands a line to the outstanding request if one exists, else
// appends it to the log ring. A line consumed by a request never
// appears in the ring, and a line is never handed to both.
func (s *Session) deliver(line string) {
	s.pendingMu.Lock()
	if ch := s.pending; ch != nil {
		s.pending = nil
		// The send happens under pendingMu so that claiming the slot
		// and filling the channel are one step: a waiter that clears
		// the slot on timeout either sees the slot gone and the line
		// already buffered, or keeps the line out of the slot entirely.
		// The channel has capacity one and the slot is claimed exactly
		// once, so this cannot block.
		ch <- line
		s.pendingMu.Unlock()
		return
	}
	s.pendingMu.Unlock()

	s.logMu.Lock()
	s.seq++
	s.ring = append(s.ring, Line{Seq: s.seq, Text: line, At: time.Now().UTC()})
	if len(s.ring) > s.logCap {
		s.ring = s.ring[len(s.ring)-s.logCap:]
	}
	s.logMu.Unlock()
}

// Send writes a newline-terminated command without waiting for a reply.
func (s *Session) Send(cmd string) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("serial: write %q on %s: %w", cmd, s.portName, err)
	}
	return nil
}

// SendAndWait writes a command and blocks for the next received line or
// the timeout, whichever comes first.
//
// A timeout is a defined non-error outcome (ok=false): many firmware
// commands are fire-and-forget and "no reply" means likely delivered,
// unconfirmed. ErrRequestPending is returned if another SendAndWait is
// already outstanding.
func (s *Session) SendAndWait(cmd string, timeout time.Duration) (string, bool, error) {
	s.pendingMu.Lock()
	if s.pending != nil {
		s.pendingMu.Unlock()
		return "", false, ErrRequestPending
	}
	ch := make(chan string, 1)
	s.pending = ch
	s.pendingMu.Unlock()

	if err := s.Send(cmd); err != nil {
		s.clearPending(ch)
		return "", false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-ch:
		return line, true, nil
	case <-s.done:
		s.clearPending(ch)
		return "", false, ErrClosed
	case <-timer.C:
		s.clearPending(ch)
		// The reader may have claimed the slot just as the timer
		// fired; the buffered channel holds that line.
		select {
		case line := <-ch:
			return line, true, nil
		default:
			return "", false, nil
		}
	}
}

func (s *Session) clearPending(ch chan string) {
	s.pendingMu.Lock()
	if s.pending == ch {
		s.pending = nil
	}
	s.pendingMu.Unlock()
}

// LogSince returns all ring lines with sequence greater than seq, plus
// the current maximum sequence for use as the next cursor. It never
// blocks and never re-delivers lines at or below the cursor.
func (s *Session) LogSince(seq uint64) ([]Line, uint64) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	var out []Line
	for _, l := range s.ring {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out, s.seq
}

// Close signals the reader to stop, closes the handle and joins the
// reader with a bounded timeout. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.port.Close()

		select {
		case <-s.readerDone:
		case <-time.After(2 * time.Second):
			s.logger.Warn("reader did not stop in time", "port", s.portName)
		}
	})
	return s.closeErr
}
