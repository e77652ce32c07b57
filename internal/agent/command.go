// Package agent is the device-facing command layer: it maps typed
// commands onto the firmware wire protocol and manages the per-device
// identity an external backend consumer needs.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnknownCommand indicates an unrecognised command kind.
	ErrUnknownCommand = errors.New("agent: unknown command kind")

	// ErrInvalidPayload indicates a command payload failed validation.
	ErrInvalidPayload = errors.New("agent: invalid command payload")
)

// Command is a closed set of device commands. Each variant carries a
// typed payload and knows its own wire encoding.
type Command interface {
	// Wire returns the newline-less wire form of the command.
	Wire() string
	isCommand()
}

// Spray runs the spray pump for a bounded duration.
type Spray struct {
	DurationMS int `json:"duration_ms"`
}

func (c Spray) Wire() string { return "Spray " + strconv.Itoa(c.DurationMS) }
func (Spray) isCommand()     {}

// SprayOn switches the spray pump on until told otherwise.
type SprayOn struct{}

func (SprayOn) Wire() string { return "SprayOn" }
func (SprayOn) isCommand()   {}

// SprayOff switches the spray pump off.
type SprayOff struct{}

func (SprayOff) Wire() string { return "SprayOff" }
func (SprayOff) isCommand()   {}

// FillL dispenses the given volume of water in liters.
type FillL struct {
	Liters float64 `json:"liters"`
}

func (c FillL) Wire() string { return "FillL " + strconv.FormatFloat(c.Liters, 'g', -1, 64) }
func (FillL) isCommand()     {}

// CancelFill aborts an in-progress fill.
type CancelFill struct{}

func (CancelFill) Wire() string { return "CancelFill" }
func (CancelFill) isCommand()   {}

// Status requests the firmware status line.
type Status struct{}

func (Status) Wire() string { return "Status" }
func (Status) isCommand()   {}

// TDS requests a dissolved-solids reading.
type TDS struct{}

func (TDS) Wire() string { return "TDS" }
func (TDS) isCommand()   {}

// Decode builds a Command from a kind tag and JSON payload. An unknown
// kind is a rejected command, never a silent no-op; payloads are
// validated before anything reaches the wire.
func Decode(kind string, payload json.RawMessage) (Command, error) {
	switch kind {
	case "spray":
		var c Spray
		if err := unmarshal(payload, &c); err != nil {
			return nil, err
		}
		if c.DurationMS <= 0 {
			return nil, fmt.Errorf("%w: spray duration_ms must be positive", ErrInvalidPayload)
		}
		return c, nil
	case "spray_on":
		return SprayOn{}, nil
	case "spray_off":
		return SprayOff{}, nil
	case "fill_l":
		var c FillL
		if err := unmarshal(payload, &c); err != nil {
			return nil, err
		}
		if c.Liters <= 0 {
			return nil, fmt.Errorf("%w: fill_l liters must be positive", ErrInvalidPayload)
		}
		return c, nil
	case "cancel_fill":
		return CancelFill{}, nil
	case "status":
		return Status{}, nil
	case "tds":
		return TDS{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
}

func unmarshal(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload required", ErrInvalidPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
