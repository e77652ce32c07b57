package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Nileneb/growdash/internal/telemetry"
)

// WriteReading records one parsed telemetry reading for a device.
// The write is non-blocking; points are batched and sent
// asynchronously. A disconnected client drops the point silently.
func (c *Client) WriteReading(publicID string, r telemetry.Reading) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_telemetry",
		map[string]string{
			"device_id": publicID,
			"field":     r.Field,
		},
		map[string]interface{}{
			"value": r.Value,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteReadings records a batch of readings parsed from one line.
func (c *Client) WriteReadings(publicID string, readings []telemetry.Reading) {
	for _, r := range readings {
		c.WriteReading(publicID, r)
	}
}
