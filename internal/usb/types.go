package usb

import "time"

// Kind classifies what a discovered device node is.
type Kind string

// Known device kinds. Serial kinds come from the VID/PID table or from
// keyword matching on the USB product description; generic_serial is the
// fallback for serial adapters we cannot classify further.
const (
	KindArduinoUno    Kind = "arduino_uno"
	KindArduinoNano   Kind = "arduino_nano"
	KindArduinoMega   Kind = "arduino_mega"
	KindESP32         Kind = "esp32"
	KindESP8266       Kind = "esp8266"
	KindGenericSerial Kind = "generic_serial"
	KindCamera        Kind = "camera"
	KindUnknown       Kind = "unknown"
)

// IsSerial reports whether the kind represents a serial microcontroller.
func (k Kind) IsSerial() bool {
	switch k {
	case KindArduinoUno, KindArduinoNano, KindArduinoMega, KindESP32, KindESP8266, KindGenericSerial:
		return true
	}
	return false
}

// Device is one discovered device node with its USB metadata.
//
// Path is the device node (/dev/ttyACM0, /dev/video0). VendorID and
// ProductID are lowercase hex strings without the 0x prefix; they are
// empty for nodes whose sysfs entries expose no USB identity.
type Device struct {
	Path        string    `json:"path"`
	VendorID    string    `json:"vendor_id,omitempty"`
	ProductID   string    `json:"product_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Kind        Kind      `json:"kind"`
	LastSeen    time.Time `json:"last_seen"`
}
