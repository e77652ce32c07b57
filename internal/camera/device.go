// Package camera captures JPEG frames from V4L2 devices.
//
// Device handles are exclusive at the OS level and expensive to open,
// so they live behind the lease manager: opened on first demand, shared
// by concurrent consumers, closed after sitting idle.
package camera

import (
	"fmt"
	"strings"

	"github.com/blackjack/webcam"
)

// Logger is the minimal logging interface the package needs.
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

// Options configure frame capture.
type Options struct {
	Width  uint32
	Height uint32
	FPS    float32
}

// FrameSource produces JPEG frames and satisfies lease.Resource.
type FrameSource interface {
	Frame() ([]byte, error)
	Close() error
}

// Device wraps one streaming V4L2 handle.
type Device struct {
	path string
	cam  *webcam.Webcam
}

// OpenDevice opens the video node, negotiates an MJPEG format at the
// requested resolution and starts streaming. The device must deliver
// compressed JPEG frames; raw-only cameras are rejected.
func OpenDevice(path string, opts Options) (*Device, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("camera: open %s: %w", path, err)
	}

	format, ok := jpegFormat(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return nil, fmt.Errorf("camera: %s offers no JPEG format", path)
	}

	if _, _, _, err := cam.SetImageFormat(format, opts.Width, opts.Height); err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera: set format on %s: %w", path, err)
	}
	if opts.FPS > 0 {
		// Not every driver supports rate control; capture still works
		// at the driver's default rate.
		_ = cam.SetFramerate(opts.FPS)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera: start streaming on %s: %w", path, err)
	}

	return &Device{path: path, cam: cam}, nil
}

// jpegFormat picks a compressed JPEG pixel format from the driver's
// supported set, matching on the format description.
func jpegFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for f, desc := range formats {
		d := strings.ToUpper(desc)
		if strings.Contains(d, "JPEG") || strings.Contains(d, "MJPG") {
			return f, true
		}
	}
	return 0, false
}

// Frame blocks for the next frame and returns its JPEG bytes. The
// returned slice is a copy safe to retain.
func (d *Device) Frame() ([]byte, error) {
	if err := d.cam.WaitForFrame(2); err != nil {
		return nil, fmt.Errorf("camera: wait on %s: %w", d.path, err)
	}
	frame, err := d.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("camera: read on %s: %w", d.path, err)
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	return out, nil
}

// Close stops streaming and releases the handle.
func (d *Device) Close() error {
	d.cam.StopStreaming()
	return d.cam.Close()
}
