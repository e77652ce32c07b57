package agent

import (
	"time"
)

// Sender is the request/response primitive a serial session provides.
type Sender interface {
	SendAndWait(cmd string, timeout time.Duration) (string, bool, error)
}

// Result is the outcome of one executed command. Confirmed is false
// when the firmware sent no reply within the timeout, which for most
// actuator commands means likely delivered, unconfirmed.
type Result struct {
	Reply     string `json:"reply,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// Executor runs commands against serial sessions with a uniform
// request timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an Executor with the given per-command timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Execute writes the command and waits for its reply. The reply may be
// a telemetry line misattributed as the response; the wire protocol
// has no message IDs, so correlation is by arrival order only.
func (e *Executor) Execute(s Sender, cmd Command) (Result, error) {
	reply, ok, err := s.SendAndWait(cmd.Wire(), e.timeout)
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: reply, Confirmed: ok}, nil
}
