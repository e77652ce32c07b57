// Package supervisor drives the hot-plug lifecycle: it periodically
// scans attached hardware, diffs the result against its live session
// set and starts or stops per-device workers accordingly.
package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Nileneb/growdash/internal/agent"
	"github.com/Nileneb/growdash/internal/backoff"
	"github.com/Nileneb/growdash/internal/events"
	"github.com/Nileneb/growdash/internal/serial"
	"github.com/Nileneb/growdash/internal/usb"
)

// Logger is the minimal logging interface the supervisor needs.
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

// Scanner enumerates current hardware. Satisfied by *usb.Scanner.
type Scanner interface {
	Scan() ([]usb.Device, error)
}

// Session is the serial session surface the supervisor manages.
// Satisfied by *serial.Session.
type Session interface {
	Port() string
	Send(cmd string) error
	SendAndWait(cmd string, timeout time.Duration) (string, bool, error)
	LogSince(seq uint64) ([]serial.Line, uint64)
	Close() error
}

// SessionFactory opens a serial session for a device.
type SessionFactory func(dev usb.Device) (Session, error)

// Recorder persists lifecycle events. Satisfied by *events.Journal.
type Recorder interface {
	Record(ctx context.Context, ev *events.Event) error
}

// Notifier observes attach/detach transitions, for presence uplinks.
type Notifier interface {
	DeviceAttached(info HandleInfo)
	DeviceDetached(info HandleInfo)
}

// Handle states.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
)

// HandleInfo is a read-only snapshot of one live handle.
type HandleInfo struct {
	Port     string   `json:"port"`
	Kind     usb.Kind `json:"kind"`
	PublicID string   `json:"public_id"`
	State    string   `json:"state"`
}

// handle is one supervised device worker.
type handle struct {
	mu       sync.Mutex
	device   usb.Device
	identity agent.Identity
	state    string
	session  Session

	cancel context.CancelFunc
	done   chan struct{}
}

func (h *handle) info() HandleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HandleInfo{
		Port:     h.device.Path,
		Kind:     h.device.Kind,
		PublicID: h.identity.PublicID,
		State:    h.state,
	}
}

// Options configure a Supervisor.
type Options struct {
	ScanInterval time.Duration
	StopTimeout  time.Duration
	Backoff      backoff.Policy

	// Journal and Notifier are optional.
	Journal  Recorder
	Notifier Notifier
}

// Supervisor owns the scan loop and every live handle.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The handle set is
//     written only by the scan loop and Stop.
type Supervisor struct {
	scanner  Scanner
	resolver *agent.Resolver
	open     SessionFactory
	opts     Options
	logger   Logger

	mu      sync.Mutex
	handles map[string]*handle
}

// New creates a Supervisor. It does not start scanning; call Run.
func New(scanner Scanner, resolver *agent.Resolver, open SessionFactory, opts Options) *Supervisor {
	return &Supervisor{
		scanner:  scanner,
		resolver: resolver,
		open:     open,
		opts:     opts,
		logger:   noopLogger{},
		handles:  make(map[string]*handle),
	}
}

// SetLogger sets the logger. A nil logger restores the no-op default.
func (s *Supervisor) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// Run executes the scan loop until ctx is cancelled, then stops every
// live handle. Zero devices is a valid steady state; the loop idles
// until hardware appears.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ScanInterval)
	defer ticker.Stop()

	s.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

// scanOnce diffs one scan against the live handle set. A failed scan
// is logged and skipped: a transient enumeration error must not be
// mistaken for every device disappearing at once.
func (s *Supervisor) scanOnce(ctx context.Context) {
	devices, err := s.scanner.Scan()
	if err != nil {
		s.logger.Warn("device scan failed, keeping current set", "error", err)
		return
	}

	present := make(map[string]usb.Device, len(devices))
	for _, d := range devices {
		present[d.Path] = d
	}

	// Start workers for new devices.
	for path, dev := range present {
		s.mu.Lock()
		_, live := s.handles[path]
		s.mu.Unlock()
		if !live {
			s.start(ctx, dev)
		}
	}

	// Stop workers whose device vanished.
	s.mu.Lock()
	var gone []*handle
	for path, h := range s.handles {
		if _, ok := present[path]; !ok {
			gone = append(gone, h)
			delete(s.handles, path)
		}
	}
	s.mu.Unlock()
	for _, h := range gone {
		s.stop(h)
	}

	s.logger.Info("scan complete", "active", s.activePorts())
}

func (s *Supervisor) activePorts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ports := make([]string, 0, len(s.handles))
	for p := range s.handles {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	return ports
}

// start creates a handle and its worker. Starting a duplicate for an
// already-live port is a no-op.
func (s *Supervisor) start(ctx context.Context, dev usb.Device) {
	identity := s.resolver.Resolve(dev)

	workerCtx, cancel := context.WithCancel(ctx)
	h := &handle{
		device:   dev,
		identity: identity,
		state:    StateStarting,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if _, live := s.handles[dev.Path]; live {
		s.mu.Unlock()
		cancel()
		return
	}
	s.handles[dev.Path] = h
	s.mu.Unlock()

	s.logger.Info("device attached", "port", dev.Path, "kind", dev.Kind, "public_id", identity.PublicID)
	s.record(ctx, &events.Event{
		Type: events.TypeAttached,
		Port: dev.Path,
		Kind: string(dev.Kind),
		Details: map[string]any{
			"public_id": identity.PublicID,
		},
	})
	if s.opts.Notifier != nil {
		s.opts.Notifier.DeviceAttached(h.info())
	}

	go s.worker(workerCtx, h)
}

// worker is the per-device task. A panic in one worker is recovered
// and recorded; it never takes down the scan loop or another worker.
func (s *Supervisor) worker(ctx context.Context, h *handle) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("device worker panicked", "port", h.device.Path, "panic", r)
			s.record(context.Background(), &events.Event{
				Type: events.TypeWorkerFailed,
				Port: h.device.Path,
				Kind: string(h.device.Kind),
				Details: map[string]any{
					"panic": toString(r),
				},
			})
			s.remove(h)
		}
	}()

	if h.device.Kind.IsSerial() {
		s.serialWorker(ctx, h)
	} else {
		// Camera presence needs no open handle; capture is leased on
		// demand by its consumers.
		h.mu.Lock()
		h.state = StateRunning
		h.mu.Unlock()
		<-ctx.Done()
	}
}

// serialWorker opens the session, retrying with backoff while the
// device remains present, then holds it until stop.
func (s *Supervisor) serialWorker(ctx context.Context, h *handle) {
	b := backoff.New(s.opts.Backoff)

	var sess Session
	var failures int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var err error
		sess, err = s.open(h.device)
		if err == nil {
			break
		}
		failures++
		s.logger.Warn("serial open failed, retrying",
			"port", h.device.Path, "attempt", b.Attempt(), "error", err)
		if err := b.Sleep(ctx); err != nil {
			return
		}
	}

	h.mu.Lock()
	h.session = sess
	h.state = StateRunning
	h.mu.Unlock()
	s.logger.Info("serial session running", "port", h.device.Path)
	if failures > 0 {
		s.record(ctx, &events.Event{
			Type: events.TypeSessionRecovered,
			Port: h.device.Path,
			Kind: string(h.device.Kind),
			Details: map[string]any{
				"failed_attempts": failures,
			},
		})
	}

	<-ctx.Done()

	h.mu.Lock()
	h.session = nil
	h.mu.Unlock()
	if err := sess.Close(); err != nil {
		s.logger.Warn("session close failed", "port", h.device.Path, "error", err)
	}
}

// stop signals a handle's worker and joins it with a bounded timeout,
// so one unresponsive worker can never block the loop indefinitely.
func (s *Supervisor) stop(h *handle) {
	h.mu.Lock()
	h.state = StateStopping
	h.mu.Unlock()

	h.cancel()
	select {
	case <-h.done:
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warn("worker did not stop in time", "port", h.device.Path)
	}

	s.logger.Info("device detached", "port", h.device.Path, "kind", h.device.Kind)
	s.record(context.Background(), &events.Event{
		Type: events.TypeDetached,
		Port: h.device.Path,
		Kind: string(h.device.Kind),
	})
	if s.opts.Notifier != nil {
		s.opts.Notifier.DeviceDetached(h.info())
	}
}

// remove drops a handle from the set after its worker failed, so the
// next scan can start a fresh one.
func (s *Supervisor) remove(h *handle) {
	s.mu.Lock()
	if cur, ok := s.handles[h.device.Path]; ok && cur == h {
		delete(s.handles, h.device.Path)
	}
	s.mu.Unlock()
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	all := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		all = append(all, h)
	}
	s.handles = make(map[string]*handle)
	s.mu.Unlock()

	for _, h := range all {
		s.stop(h)
	}
}

func (s *Supervisor) record(ctx context.Context, ev *events.Event) {
	if s.opts.Journal == nil {
		return
	}
	if err := s.opts.Journal.Record(ctx, ev); err != nil {
		s.logger.Warn("event record failed", "type", ev.Type, "error", err)
	}
}

// SessionFor returns the running serial session for a port, if any.
func (s *Supervisor) SessionFor(port string) (Session, bool) {
	s.mu.Lock()
	h, ok := s.handles[port]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil, false
	}
	return h.session, true
}

// Handles returns a snapshot of every live handle, sorted by port.
func (s *Supervisor) Handles() []HandleInfo {
	s.mu.Lock()
	all := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		all = append(all, h)
	}
	s.mu.Unlock()

	out := make([]HandleInfo, 0, len(all))
	for _, h := range all {
		out = append(out, h.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}
