package usb

import "strings"

// knownBoards maps lowercase vid:pid pairs to board kinds.
//
// The table covers the boards seen in the field: genuine Arduino Unos,
// CH340 and FTDI based Nano clones, and the common ESP32 dev-kit bridges.
var knownBoards = map[[2]string]Kind{
	{"2341", "0043"}: KindArduinoUno,
	{"2341", "0001"}: KindArduinoUno,
	{"1a86", "7523"}: KindArduinoNano,
	{"0403", "6001"}: KindArduinoNano,
	{"10c4", "ea60"}: KindESP32,
	{"1a86", "55d4"}: KindESP32,
}

// Classify determines the board kind for a serial device from its USB
// vendor/product IDs, falling back to keyword matching on the product
// description. Unmatched serial devices classify as generic_serial,
// never unknown: a serial adapter we cannot name is still usable.
func Classify(vendorID, productID, description string) Kind {
	vid := strings.ToLower(strings.TrimSpace(vendorID))
	pid := strings.ToLower(strings.TrimSpace(productID))

	if kind, ok := knownBoards[[2]string{vid, pid}]; ok {
		return kind
	}

	return classifyByDescription(description)
}

func classifyByDescription(description string) Kind {
	desc := strings.ToLower(description)
	switch {
	case strings.Contains(desc, "arduino") && strings.Contains(desc, "mega"):
		return KindArduinoMega
	case strings.Contains(desc, "arduino") && strings.Contains(desc, "nano"):
		return KindArduinoNano
	case strings.Contains(desc, "arduino"):
		return KindArduinoUno
	case strings.Contains(desc, "esp32"):
		return KindESP32
	case strings.Contains(desc, "esp8266"):
		return KindESP8266
	default:
		return KindGenericSerial
	}
}
