package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Nileneb/growdash/internal/infrastructure/config"
)

// record decodes the single JSON log line in buf.
func record(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log record %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewWithWriter_StampsServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Format: "json"}, "1.2.3", &buf)

	log.Info("scanner started", "interval", "2s")

	entry := record(t, &buf)
	if entry["service"] != "growdash" {
		t.Errorf("service = %v, want growdash", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", entry["version"])
	}
	if entry["msg"] != "scanner started" {
		t.Errorf("msg = %v, want scanner started", entry["msg"])
	}
	if entry["interval"] != "2s" {
		t.Errorf("interval = %v, want 2s", entry["interval"])
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Level: "warn"}, "dev", &buf)

	log.Debug("suppressed")
	log.Info("suppressed")
	log.Warn("kept")

	if buf.Len() == 0 {
		t.Fatal("warn record missing")
	}
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 1 {
		t.Errorf("records = %d, want only the warn line", len(lines))
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("output %q does not contain the warn record", buf.String())
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{Format: "text"}, "dev", &buf)

	log.Info("port opened", "port", "/dev/ttyACM0")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
	if !strings.Contains(out, "port=/dev/ttyACM0") {
		t.Errorf("output %q missing key=value attribute", out)
	}
}

func TestComponent_TagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggingConfig{}, "dev", &buf)

	log.Component("supervisor").Info("device attached")

	entry := record(t, &buf)
	if entry["component"] != "supervisor" {
		t.Errorf("component = %v, want supervisor", entry["component"])
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"ERROR", "ERROR"},
		{"", "INFO"},
		{"verbose", "INFO"},
	}
	for _, tt := range tests {
		if got := levelFor(tt.input).String(); got != tt.want {
			t.Errorf("levelFor(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDefault_IsUsableBeforeConfig(t *testing.T) {
	log := Default()
	if log == nil {
		t.Fatal("Default() = nil")
	}
	if child := log.With("component", "boot"); child == log {
		t.Error("With() returned the receiver, want a child logger")
	}
}
