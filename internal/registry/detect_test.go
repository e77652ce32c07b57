package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCLIDetector_JSONArray(t *testing.T) {
	d := NewCLIDetector("arduino-cli", time.Second)
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`[
			{"address": "/dev/ttyACM0", "matching_boards": [{"name": "Arduino Uno", "fqbn": "arduino:avr:uno"}]},
			{"address": "/dev/ttyUSB0", "matching_boards": []}
		]`), nil
	}

	detections, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("Detect() returned %d detections, want 1", len(detections))
	}
	det := detections["/dev/ttyACM0"]
	if det.FQBN != "arduino:avr:uno" || det.Name != "Arduino Uno" {
		t.Errorf("detection = %+v", det)
	}
}

func TestCLIDetector_JSONNestedPort(t *testing.T) {
	d := NewCLIDetector("arduino-cli", time.Second)
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"detected_ports": [
			{"port": {"address": "/dev/ttyUSB0"}, "matching_boards": [{"name": "ESP32 Dev Module", "fqbn": "esp32:esp32:esp32"}]}
		]}`), nil
	}

	detections, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if detections["/dev/ttyUSB0"].FQBN != "esp32:esp32:esp32" {
		t.Errorf("detections = %+v, want nested port address parsed", detections)
	}
}

func TestCLIDetector_TextFallback(t *testing.T) {
	d := NewCLIDetector("arduino-cli", time.Second)
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("Port         Board\n/dev/ttyACM0 Arduino Uno\n/dev/ttyUSB0 something else\n"), nil
	}

	detections, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("Detect() returned %d detections, want 1", len(detections))
	}
	if detections["/dev/ttyACM0"].Name != "Arduino Uno" {
		t.Errorf("detection = %+v", detections["/dev/ttyACM0"])
	}
}

func TestCLIDetector_ToolError(t *testing.T) {
	d := NewCLIDetector("arduino-cli", time.Second)
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exec: not found")
	}

	if _, err := d.Detect(context.Background()); err == nil {
		t.Error("Detect() = nil error, want tool error")
	}
}

func TestCLIDetector_InvocationArgs(t *testing.T) {
	d := NewCLIDetector("arduino-cli", time.Second)
	var gotName string
	var gotArgs []string
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		if _, ok := ctx.Deadline(); !ok {
			t.Error("Detect() context has no deadline")
		}
		return []byte("[]"), nil
	}

	if _, err := d.Detect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotName != "arduino-cli" {
		t.Errorf("tool = %q, want arduino-cli", gotName)
	}
	want := []string{"board", "list", "--format", "json"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, gotArgs[i], want[i])
		}
	}
}
