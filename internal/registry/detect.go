package registry

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"
)

// Detection is one board resolved by the external detection tool.
type Detection struct {
	Port string
	FQBN string
	Name string
}

// Detector resolves board names for attached serial ports. A nil map
// with a nil error means the tool ran but matched nothing.
type Detector interface {
	Detect(ctx context.Context) (map[string]Detection, error)
}

// CLIDetector shells out to arduino-cli (or a compatible tool) with
// "board list --format json". The invocation is timeout-bounded; the
// tool is treated as opaque and may be absent entirely.
type CLIDetector struct {
	tool    string
	timeout time.Duration

	// run is swapped out in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCLIDetector creates a detector invoking the named tool binary.
func NewCLIDetector(tool string, timeout time.Duration) *CLIDetector {
	return &CLIDetector{
		tool:    tool,
		timeout: timeout,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Detect runs the tool once and parses its port list. JSON output is
// preferred; plain text falls back to keyword matching. Any tool
// failure surfaces as an error so the caller can degrade entries.
func (d *CLIDetector) Detect(ctx context.Context) (map[string]Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, d.tool, "board", "list", "--format", "json")
	if err != nil {
		return nil, err
	}

	if detections, ok := parseJSON(out); ok {
		return detections, nil
	}
	return parseText(string(out)), nil
}

// portJSON covers both output shapes arduino-cli has used: a flat
// address field, and a nested port object.
type portJSON struct {
	Address string `json:"address"`
	Port    struct {
		Address string `json:"address"`
	} `json:"port"`
	MatchingBoards []struct {
		Name string `json:"name"`
		FQBN string `json:"fqbn"`
	} `json:"matching_boards"`
}

func parseJSON(data []byte) (map[string]Detection, bool) {
	var ports []portJSON
	if err := json.Unmarshal(data, &ports); err != nil {
		var wrapper struct {
			DetectedPorts []portJSON `json:"detected_ports"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, false
		}
		ports = wrapper.DetectedPorts
	}

	detections := make(map[string]Detection)
	for _, p := range ports {
		addr := p.Address
		if addr == "" {
			addr = p.Port.Address
		}
		if addr == "" || len(p.MatchingBoards) == 0 {
			continue
		}
		detections[addr] = Detection{
			Port: addr,
			FQBN: p.MatchingBoards[0].FQBN,
			Name: p.MatchingBoards[0].Name,
		}
	}
	return detections, true
}

// parseText handles plain-text tool output: one port per line, matched
// by a small keyword set.
func parseText(out string) map[string]Detection {
	keywords := []string{"arduino uno", "arduino mega", "arduino nano", "esp32", "esp8266"}

	detections := make(map[string]Detection)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				detections[fields[0]] = Detection{
					Port: fields[0],
					Name: titleWords(kw),
				}
				break
			}
		}
	}
	return detections
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
