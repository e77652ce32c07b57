package telemetry

import (
	"context"
	"time"

	"github.com/Nileneb/growdash/internal/supervisor"
)

// Logger is the minimal logging interface the pump needs.
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

// Sessions is the supervisor surface the pump reads from.
type Sessions interface {
	Handles() []supervisor.HandleInfo
	SessionFor(port string) (supervisor.Session, bool)
}

// Sink receives parsed readings. Satisfied by the InfluxDB client.
type Sink interface {
	WriteReadings(publicID string, readings []Reading)
}

// Pump periodically drains each running session's unsolicited log via
// its cursor and forwards parsed readings to the sink. Each port keeps
// its own cursor, so the pump and other log consumers never steal
// lines from the request/response path.
type Pump struct {
	sessions Sessions
	sink     Sink
	interval time.Duration
	logger   Logger

	cursors map[string]uint64
}

// NewPump creates a Pump polling at the given interval.
func NewPump(sessions Sessions, sink Sink, interval time.Duration) *Pump {
	return &Pump{
		sessions: sessions,
		sink:     sink,
		interval: interval,
		logger:   noopLogger{},
		cursors:  make(map[string]uint64),
	}
}

// SetLogger sets the logger. A nil logger restores the no-op default.
func (p *Pump) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	p.logger = l
}

// Run polls until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pumpOnce()
		}
	}
}

func (p *Pump) pumpOnce() {
	live := make(map[string]bool)

	for _, h := range p.sessions.Handles() {
		if !h.Kind.IsSerial() {
			continue
		}
		live[h.Port] = true

		sess, ok := p.sessions.SessionFor(h.Port)
		if !ok {
			continue
		}

		lines, max := sess.LogSince(p.cursors[h.Port])
		p.cursors[h.Port] = max

		for _, line := range lines {
			readings, ok := Parse(line.Text)
			if !ok {
				continue
			}
			p.sink.WriteReadings(h.PublicID, readings)
			p.logger.Debug("telemetry recorded", "port", h.Port, "readings", len(readings))
		}
	}

	// Forget cursors for vanished ports so a replugged device's fresh
	// sequence numbering starts from zero again.
	for port := range p.cursors {
		if !live[port] {
			delete(p.cursors, port)
		}
	}
}
