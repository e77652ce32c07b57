package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/Nileneb/growdash/internal/infrastructure/config"
	"github.com/Nileneb/growdash/internal/telemetry"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteReading_DisconnectedIsNoop(t *testing.T) {
	c := &Client{connected: false}

	// Must not panic or block with a nil write API.
	c.WriteReading("growdash-2341-0043-ttyACM0", telemetry.Reading{Field: "tds", Value: 320})
	c.WriteReadings("growdash-2341-0043-ttyACM0", []telemetry.Reading{
		{Field: "water_level", Value: 45},
	})
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{connected: false}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}
