package serial

import (
	"fmt"
	"time"

	bserial "go.bug.st/serial"
)

// Open opens the named port at the given baud rate and returns a
// running session. It is a single-candidate OpenFirst.
func Open(portName string, baud, logCap int) (*Session, error) {
	return OpenFirst([]string{portName}, baud, logCap)
}

// OpenFirst tries each candidate port in order and returns a session on
// the first one that opens. Every port is configured with a short read
// timeout so the reader loop can observe its stop signal between reads.
func OpenFirst(candidates []string, baud, logCap int) (*Session, error) {
	var lastErr error
	for _, name := range candidates {
		port, err := bserial.Open(name, &bserial.Mode{BaudRate: baud})
		if err != nil {
			lastErr = fmt.Errorf("serial: open %s: %w", name, err)
			continue
		}
		if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
			port.Close()
			lastErr = fmt.Errorf("serial: configure %s: %w", name, err)
			continue
		}
		return NewSession(name, port, logCap), nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPort, lastErr)
	}
	return nil, ErrNoPort
}
