// Package registry maintains the persistent port-to-identity map for
// discovered devices.
//
// Entries live in a human-inspectable JSON file keyed by device path.
// The file is safe to delete at any time: the next refresh rebuilds it
// from a live scan. A full refresh is destructive, clearing the table
// before repopulating, so ports absent at that moment vanish until they
// reappear. The long refresh cadence makes this acceptable; see the
// tests for the tradeoff.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Nileneb/growdash/internal/usb"
)

// Logger is the minimal logging interface the registry needs.
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

// Entry is one persisted device identity plus its detection result.
type Entry struct {
	usb.Device
	FQBN      string `json:"fqbn,omitempty"`
	BoardName string `json:"board_name,omitempty"`
}

// Registry is the durable path-keyed device store.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Refresh and cleanup are
//     serialized by the registry mutex so scheduled and on-demand
//     triggers cannot race the underlying file.
type Registry struct {
	mu       sync.Mutex
	path     string
	scanner  Scanner
	detector Detector
	logger   Logger
	entries  map[string]Entry
}

// New creates a Registry persisted at path, loading any existing file.
// A corrupt or unreadable file resets to an empty registry; it never
// fails construction.
func New(path string, scanner Scanner, detector Detector) *Registry {
	r := &Registry{
		path:     path,
		scanner:  scanner,
		detector: detector,
		logger:   noopLogger{},
		entries:  make(map[string]Entry),
	}
	r.load()
	return r
}

// SetLogger sets the logger. A nil logger restores the no-op default.
func (r *Registry) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		r.logger.Warn("registry file unreadable, starting empty", "path", r.path, "error", err)
		return
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("registry file corrupt, starting empty", "path", r.path, "error", err)
		return
	}
	r.entries = entries
}

// persist writes the table atomically via a temp file and rename.
// Caller holds the mutex.
func (r *Registry) persist() error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("registry: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("registry: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("registry: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("registry: rename: %w", err)
	}
	return nil
}

// Refresh rescans hardware and rebuilds the table from scratch.
//
// Serial identities are passed through the external detection tool to
// resolve a board name and FQBN. A tool failure degrades the affected
// serial entries to kind unknown rather than dropping them, so presence
// is never silently hidden. Detection never refines camera entries.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.scanner.Scan()
	if err != nil {
		if len(devices) == 0 {
			return fmt.Errorf("registry: scan: %w", err)
		}
		r.logger.Warn("partial scan result", "error", err)
	}

	var detections map[string]Detection
	var detectErr error
	if r.detector != nil && hasSerial(devices) {
		detections, detectErr = r.detector.Detect(ctx)
		if detectErr != nil {
			r.logger.Warn("board detection failed", "error", detectErr)
		}
	}

	entries := make(map[string]Entry, len(devices))
	for _, d := range devices {
		e := Entry{Device: d}
		if d.Kind.IsSerial() {
			switch {
			case detectErr != nil:
				e.Kind = usb.KindUnknown
			default:
				if det, ok := detections[d.Path]; ok {
					e.FQBN = det.FQBN
					e.BoardName = det.Name
					if refined := usb.Classify("", "", det.Name); refined != usb.KindGenericSerial {
						e.Kind = refined
					}
				}
			}
		}
		entries[d.Path] = e
	}

	r.entries = entries
	if err := r.persist(); err != nil {
		r.logger.Error("registry persist failed", "error", err)
		return err
	}

	r.logger.Info("registry refreshed", "entries", len(entries))
	return nil
}

func hasSerial(devices []usb.Device) bool {
	for _, d := range devices {
		if d.Kind.IsSerial() {
			return true
		}
	}
	return false
}

// RefreshIfStale refreshes only when the freshest entry is older than
// maxAge, or the registry is empty. Returns whether a refresh ran.
func (r *Registry) RefreshIfStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	age, ok := r.Age()
	if ok && age <= maxAge {
		return false, nil
	}
	return true, r.Refresh(ctx)
}

// Age returns the time since the freshest last_seen. ok is false when
// the registry is empty.
func (r *Registry) Age() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newest time.Time
	for _, e := range r.entries {
		if e.LastSeen.After(newest) {
			newest = e.LastSeen
		}
	}
	if newest.IsZero() {
		return 0, false
	}
	return time.Since(newest), true
}

// Get returns the entry for a device path.
func (r *Registry) Get(port string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[port]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// All returns every entry, sorted by path.
func (r *Registry) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(func(Entry) bool { return true })
}

// ByKind returns entries of the given kind, sorted by path.
func (r *Registry) ByKind(kind usb.Kind) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(func(e Entry) bool { return e.Kind == kind })
}

// SerialPorts returns every serial entry, sorted by path.
func (r *Registry) SerialPorts() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(func(e Entry) bool { return e.Kind.IsSerial() })
}

// Cameras returns every camera entry, sorted by path.
func (r *Registry) Cameras() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(func(e Entry) bool { return e.Kind == usb.KindCamera })
}

// DefaultPort returns the first serial port in path order, for callers
// that want "the board" without caring which.
func (r *Registry) DefaultPort() (string, bool) {
	ports := r.SerialPorts()
	if len(ports) == 0 {
		return "", false
	}
	return ports[0].Path, true
}

func (r *Registry) sortedLocked(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// CleanupStale removes entries whose last_seen is older than maxAge,
// without a full rescan. Returns how many were removed.
func (r *Registry) CleanupStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for path, e := range r.entries {
		if e.LastSeen.Before(cutoff) {
			delete(r.entries, path)
			removed++
		}
	}
	if removed > 0 {
		if err := r.persist(); err != nil {
			r.logger.Error("registry persist failed", "error", err)
		}
		r.logger.Info("stale entries removed", "count", removed)
	}
	return removed
}
