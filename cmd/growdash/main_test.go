package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nileneb/growdash/internal/events"
	"github.com/Nileneb/growdash/internal/infrastructure/config"
	"github.com/Nileneb/growdash/internal/infrastructure/logging"
	"github.com/Nileneb/growdash/internal/registry"
	"github.com/Nileneb/growdash/internal/usb"
)

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GROWDASH_CONFIG", "")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("GROWDASH_CONFIG", "/etc/growdash/config.yaml")

	if got := getConfigPath(); got != "/etc/growdash/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GROWDASH_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := loadConfig(logging.Default())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("api port = %d, want default 8000", cfg.API.Port)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("baud rate = %d, want default 9600", cfg.Serial.BaudRate)
	}
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("api:\n  port: 9100\nserial:\n  baud_rate: 115200\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("GROWDASH_CONFIG", path)

	cfg, err := loadConfig(logging.Default())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("api port = %d, want 9100", cfg.API.Port)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("baud rate = %d, want 115200", cfg.Serial.BaudRate)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  port: -5\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("GROWDASH_CONFIG", path)

	if _, err := loadConfig(logging.Default()); err == nil {
		t.Error("loadConfig() with invalid port should fail")
	}
}

func TestCameraOptions_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.Width = 1280
	cfg.Camera.Height = 720
	cfg.Camera.FPS = 15

	opts := cameraOptions(cfg)
	if opts.Width != 1280 || opts.Height != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", opts.Width, opts.Height)
	}
	if opts.FPS != 15 {
		t.Errorf("FPS = %v, want 15", opts.FPS)
	}
}

type stubScanner struct {
	devices []usb.Device
}

func (s *stubScanner) Scan() ([]usb.Device, error) { return s.devices, nil }

type stubDetector struct{}

func (stubDetector) Detect(ctx context.Context) (map[string]registry.Detection, error) {
	return nil, nil
}

type recordingRecorder struct {
	events []events.Event
}

func (r *recordingRecorder) Record(ctx context.Context, ev *events.Event) error {
	r.events = append(r.events, *ev)
	return nil
}

func TestRefreshRegistry_JournalsRefresh(t *testing.T) {
	cfg := config.Default()
	scanner := &stubScanner{devices: []usb.Device{
		{Path: "/dev/ttyACM0", Kind: usb.KindArduinoUno, LastSeen: time.Now().UTC()},
	}}
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"), scanner, stubDetector{})
	rec := &recordingRecorder{}
	ctx := context.Background()

	// An empty registry is stale by definition, so the first call
	// refreshes and journals.
	refreshed, err := refreshRegistry(ctx, cfg, reg, rec, logging.Default())
	if err != nil {
		t.Fatalf("refreshRegistry() error = %v", err)
	}
	if !refreshed {
		t.Fatal("refreshRegistry() = false, want refresh on empty registry")
	}
	if len(rec.events) != 1 {
		t.Fatalf("journal events = %d, want 1", len(rec.events))
	}
	if rec.events[0].Type != events.TypeRegistryRefresh {
		t.Errorf("event type = %q, want %q", rec.events[0].Type, events.TypeRegistryRefresh)
	}
	if got := rec.events[0].Details["devices"]; got != 1 {
		t.Errorf("devices detail = %v, want 1", got)
	}

	// A fresh registry must neither refresh nor journal.
	refreshed, err = refreshRegistry(ctx, cfg, reg, rec, logging.Default())
	if err != nil {
		t.Fatalf("refreshRegistry() second call error = %v", err)
	}
	if refreshed {
		t.Error("refreshRegistry() = true on fresh registry, want false")
	}
	if len(rec.events) != 1 {
		t.Errorf("journal events after fresh call = %d, want still 1", len(rec.events))
	}
}
