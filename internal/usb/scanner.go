package usb

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
)

// Logger is the minimal logging interface the scanner needs.
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

// Scanner discovers serial microcontrollers and V4L2 cameras attached
// over USB. Scanning reads metadata only; it never opens a device node,
// so it cannot disturb an active serial session or camera stream.
type Scanner struct {
	devRoot   string
	sysfsRoot string
	logger    Logger

	// listPorts is swapped out in tests.
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a Scanner using the standard /dev and sysfs paths.
func NewScanner() *Scanner {
	return &Scanner{
		devRoot:   "/dev",
		sysfsRoot: "/sys/class/video4linux",
		logger:    noopLogger{},
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// SetLogger sets the logger used by the scanner. Must be called before
// the first Scan; a nil logger restores the no-op default.
func (s *Scanner) SetLogger(l Logger) {
	if l == nil {
		s.logger = noopLogger{}
		return
	}
	s.logger = l
}

// Scan enumerates current devices. Serial and camera discovery fail
// independently: an error on one side still returns the other side's
// devices along with the error.
func (s *Scanner) Scan() ([]Device, error) {
	now := time.Now().UTC()

	serial, serr := s.scanSerial(now)
	cameras, cerr := s.scanCameras(now)

	devices := append(serial, cameras...)
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })

	if serr != nil {
		return devices, fmt.Errorf("usb: serial scan: %w", serr)
	}
	if cerr != nil {
		return devices, fmt.Errorf("usb: camera scan: %w", cerr)
	}
	return devices, nil
}

// scanSerial lists USB serial adapters via the OS port enumerator and
// keeps only hot-pluggable ACM/USB nodes, skipping onboard UARTs.
func (s *Scanner) scanSerial(now time.Time) ([]Device, error) {
	ports, err := s.listPorts()
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, p := range ports {
		base := filepath.Base(p.Name)
		if !strings.HasPrefix(base, "ttyACM") && !strings.HasPrefix(base, "ttyUSB") {
			continue
		}

		d := Device{
			Path:        p.Name,
			Description: p.Product,
			Kind:        KindGenericSerial,
			LastSeen:    now,
		}
		if p.IsUSB {
			d.VendorID = strings.ToLower(p.VID)
			d.ProductID = strings.ToLower(p.PID)
		}
		d.Kind = Classify(d.VendorID, d.ProductID, d.Description)

		s.logger.Debug("serial device found",
			"path", d.Path, "vid", d.VendorID, "pid", d.ProductID, "kind", d.Kind)
		devices = append(devices, d)
	}
	return devices, nil
}

// scanCameras walks /dev for video nodes and deduplicates them by
// physical device. A UVC camera typically exposes one capture node and
// one metadata node; both resolve to the same sysfs parent, and only
// the lowest-numbered node per parent is reported.
func (s *Scanner) scanCameras(now time.Time) ([]Device, error) {
	entries, err := os.ReadDir(s.devRoot)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "video") {
			names = append(names, e.Name())
		}
	}
	// Lexicographic order would put video10 before video2, so sort by
	// node number.
	sort.Slice(names, func(i, j int) bool {
		ni, nj := videoNodeNumber(names[i]), videoNodeNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	seen := make(map[string]bool)
	var devices []Device
	for _, name := range names {
		parent := s.cameraParent(name)
		if parent != "" && seen[parent] {
			s.logger.Debug("camera node skipped, shares physical device", "node", name)
			continue
		}
		if parent != "" {
			seen[parent] = true
		}

		devices = append(devices, Device{
			Path:        filepath.Join(s.devRoot, name),
			Description: s.cameraName(name),
			Kind:        KindCamera,
			LastSeen:    now,
		})
	}
	return devices, nil
}

// videoNodeNumber extracts the numeric suffix of a video node name.
// Nodes without a parseable number sort last.
func videoNodeNumber(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
	if err != nil {
		return math.MaxInt
	}
	return n
}

// cameraParent resolves the sysfs device link for a video node to its
// physical USB device path. Returns "" when sysfs has no entry, in
// which case the node is reported without deduplication.
func (s *Scanner) cameraParent(node string) string {
	link := filepath.Join(s.sysfsRoot, node, "device")
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return ""
	}
	return resolved
}

// cameraName reads the human-readable name sysfs records for a video node.
func (s *Scanner) cameraName(node string) string {
	data, err := os.ReadFile(filepath.Join(s.sysfsRoot, node, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
