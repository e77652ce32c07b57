package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Registry.Path == "" {
		t.Error("Registry.Path is empty")
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("Serial.BaudRate = %d, want 9600", cfg.Serial.BaudRate)
	}
	if cfg.Supervisor.ScanIntervalSeconds != 30 {
		t.Errorf("Supervisor.ScanIntervalSeconds = %d, want 30", cfg.Supervisor.ScanIntervalSeconds)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("API.Port = %d, want 8000", cfg.API.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
registry:
  path: /var/lib/growdash/boards.json
  detect_timeout_seconds: 5
serial:
  baud_rate: 115200
supervisor:
  scan_interval_seconds: 12
api:
  port: 9000
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.Path != "/var/lib/growdash/boards.json" {
		t.Errorf("Registry.Path = %q, want /var/lib/growdash/boards.json", cfg.Registry.Path)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Errorf("Serial.BaudRate = %d, want 115200", cfg.Serial.BaudRate)
	}
	if cfg.ScanInterval() != 12*time.Second {
		t.Errorf("ScanInterval() = %v, want 12s", cfg.ScanInterval())
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	// Untouched sections keep defaults.
	if cfg.Camera.FPS != 8 {
		t.Errorf("Camera.FPS = %d, want default 8", cfg.Camera.FPS)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("GROWDASH_API_PORT", "9100")
	t.Setenv("GROWDASH_REGISTRY_PATH", "/tmp/boards.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want env override 9100", cfg.API.Port)
	}
	if cfg.Registry.Path != "/tmp/boards.json" {
		t.Errorf("Registry.Path = %q, want env override", cfg.Registry.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() on missing file = nil error, want error")
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := Default()
	cfg.Registry.Path = ""
	cfg.API.Port = 0
	cfg.MQTT.QoS = 3

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"registry.path", "api.port", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %q", err, want)
		}
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()
	if cfg.DetectTimeout() != 10*time.Second {
		t.Errorf("DetectTimeout() = %v, want 10s", cfg.DetectTimeout())
	}
	if cfg.RegistryMaxAge() != time.Hour {
		t.Errorf("RegistryMaxAge() = %v, want 1h", cfg.RegistryMaxAge())
	}
	if cfg.StopTimeout() != 5*time.Second {
		t.Errorf("StopTimeout() = %v, want 5s", cfg.StopTimeout())
	}
	if cfg.CameraIdleTimeout() != 30*time.Second {
		t.Errorf("CameraIdleTimeout() = %v, want 30s", cfg.CameraIdleTimeout())
	}
}
