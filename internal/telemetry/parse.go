// Package telemetry parses the unsolicited status lines the firmware
// prints between replies.
//
// Known line shapes:
//
//	WaterLevel: 45
//	TDS=320 TempC=22.5
//	Spray: ON
//	Tab: OFF
//
// Anything else is firmware chatter and parses to nothing.
package telemetry

import (
	"strconv"
	"strings"
)

// Reading is one numeric measurement extracted from a line. Boolean
// states (ON/OFF) map to 1 and 0.
type Reading struct {
	Field string
	Value float64
}

// fieldNames maps wire keys to measurement field names.
var fieldNames = map[string]string{
	"waterlevel": "water_level",
	"tds":        "tds",
	"tempc":      "temp_c",
	"spray":      "spray",
	"tab":        "tab",
	"pump":       "pump",
}

// Parse extracts readings from one line. ok is false when the line
// matches no known shape.
func Parse(line string) ([]Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	if strings.Contains(line, "=") {
		return parsePairs(line)
	}
	if k, v, found := strings.Cut(line, ":"); found {
		r, ok := reading(k, v)
		if !ok {
			return nil, false
		}
		return []Reading{r}, true
	}
	return nil, false
}

// parsePairs handles space-separated key=value lines.
func parsePairs(line string) ([]Reading, bool) {
	var out []Reading
	for _, pair := range strings.Fields(line) {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		if r, ok := reading(k, v); ok {
			out = append(out, r)
		}
	}
	return out, len(out) > 0
}

func reading(key, value string) (Reading, bool) {
	field, ok := fieldNames[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return Reading{}, false
	}

	v := strings.TrimSpace(value)
	switch strings.ToUpper(v) {
	case "ON":
		return Reading{Field: field, Value: 1}, true
	case "OFF":
		return Reading{Field: field, Value: 0}, true
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return Reading{}, false
	}
	return Reading{Field: field, Value: f}, true
}
