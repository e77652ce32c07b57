package mqtt

import (
	"encoding/json"
	"time"

	"github.com/Nileneb/growdash/internal/telemetry"
)

// Telemetry publishes parsed readings to per-device topics. It
// implements the telemetry pump's Sink interface; publish failures are
// logged and dropped so a broker outage never stalls the pump.
type Telemetry struct {
	client *Client
	qos    byte
	logger Logger
}

// NewTelemetry creates a Telemetry publisher on an established client.
func NewTelemetry(client *Client, qos byte, logger Logger) *Telemetry {
	return &Telemetry{client: client, qos: qos, logger: logger}
}

type telemetryPayload struct {
	Fields    map[string]float64 `json:"fields"`
	Timestamp string             `json:"timestamp"`
}

// WriteReadings publishes one message carrying all readings from a
// single poll. Messages are not retained; the time series lives in
// the storage backend, not the broker.
func (t *Telemetry) WriteReadings(publicID string, readings []telemetry.Reading) {
	if len(readings) == 0 {
		return
	}

	fields := make(map[string]float64, len(readings))
	for _, r := range readings {
		fields[r.Field] = r.Value
	}
	payload, err := json.Marshal(telemetryPayload{
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := t.client.Publish(DeviceTelemetryTopic(publicID), payload, t.qos, false); err != nil {
		if t.logger != nil {
			t.logger.Warn("telemetry publish failed", "public_id", publicID, "error", err)
		}
	}
}
