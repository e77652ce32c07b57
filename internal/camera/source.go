package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/Nileneb/growdash/internal/backoff"
	"github.com/Nileneb/growdash/internal/lease"
)

// streamBuffer bounds the per-consumer frame channel. A slow consumer
// loses the oldest buffered frames, never stalls capture.
const streamBuffer = 4

// consecutive read failures before the lease is torn down and reopened.
const maxReadFailures = 3

// Source serves snapshots and frame streams for camera devices, keyed
// by device path. All capture goes through the lease manager so
// concurrent consumers share one open handle per device.
type Source struct {
	manager *lease.Manager
	policy  backoff.Policy
	logger  Logger
}

// NewSource creates a Source. open is invoked lazily per device path;
// idleTimeout and sweepInterval govern when unused handles close.
func NewSource(open lease.OpenFunc, idleTimeout, sweepInterval time.Duration, policy backoff.Policy) *Source {
	return &Source{
		manager: lease.NewManager(open, idleTimeout, sweepInterval),
		policy:  policy,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger. A nil logger restores the no-op default.
func (s *Source) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

func (s *Source) capture(key string) ([]byte, error) {
	var frame []byte
	err := s.manager.Do(key, func(r lease.Resource) error {
		fs, ok := r.(FrameSource)
		if !ok {
			return fmt.Errorf("camera: resource for %s is not a frame source", key)
		}
		var err error
		frame, err = fs.Frame()
		return err
	})
	return frame, err
}

// Snapshot returns a single JPEG frame for the device. One read
// failure invalidates the handle and retries once against a fresh
// open, covering the common case of a camera replugged between uses.
func (s *Source) Snapshot(key string) ([]byte, error) {
	frame, err := s.capture(key)
	if err == nil {
		return frame, nil
	}

	s.logger.Warn("snapshot failed, reopening device", "key", key, "error", err)
	s.manager.Invalidate(key)
	return s.capture(key)
}

// Stream returns a channel of JPEG frames for the device. Capture runs
// until ctx is cancelled; the channel is closed on return. The channel
// is bounded: when the consumer lags, the oldest buffered frame is
// dropped in favour of the newest.
//
// Read failures back off and retry against the same lease; repeated
// failures tear the handle down so the next attempt reopens it. A
// device that cannot be opened yields no frames rather than an error,
// keeping consumer loops simple.
func (s *Source) Stream(ctx context.Context, key string) <-chan []byte {
	frames := make(chan []byte, streamBuffer)

	go func() {
		defer close(frames)

		s.manager.RegisterClient(key)
		defer s.manager.UnregisterClient(key)

		b := backoff.New(s.policy)
		failures := 0

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			frame, err := s.capture(key)
			if err != nil {
				failures++
				s.logger.Warn("frame capture failed", "key", key, "failures", failures, "error", err)
				if failures >= maxReadFailures {
					s.manager.Invalidate(key)
					failures = 0
				}
				if err := b.Sleep(ctx); err != nil {
					return
				}
				continue
			}
			failures = 0
			b.Reset()

			select {
			case frames <- frame:
			default:
				// Drop the oldest frame to make room for the newest.
				select {
				case <-frames:
				default:
				}
				select {
				case frames <- frame:
				default:
				}
			}
		}
	}()

	return frames
}

// Shutdown force-closes every open device handle.
func (s *Source) Shutdown() {
	s.manager.Shutdown()
}
