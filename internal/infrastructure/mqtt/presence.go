package mqtt

import (
	"encoding/json"
	"time"

	"github.com/Nileneb/growdash/internal/supervisor"
)

// Presence publishes device attach state as retained messages. It
// implements the supervisor's Notifier interface; publish failures are
// logged and dropped, never propagated into the scan loop.
type Presence struct {
	client *Client
	logger Logger
}

// NewPresence creates a Presence publisher on an established client.
func NewPresence(client *Client, logger Logger) *Presence {
	return &Presence{client: client, logger: logger}
}

type presencePayload struct {
	State     string `json:"state"`
	Port      string `json:"port"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

func (p *Presence) publish(state string, info supervisor.HandleInfo) {
	payload, err := json.Marshal(presencePayload{
		State:     state,
		Port:      info.Port,
		Kind:      string(info.Kind),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := p.client.PublishRetained(DevicePresenceTopic(info.PublicID), payload); err != nil {
		if p.logger != nil {
			p.logger.Warn("presence publish failed", "public_id", info.PublicID, "error", err)
		}
	}
}

// DeviceAttached publishes the attached state for a device.
func (p *Presence) DeviceAttached(info supervisor.HandleInfo) {
	p.publish("attached", info)
}

// DeviceDetached publishes the detached state for a device.
func (p *Presence) DeviceDetached(info supervisor.HandleInfo) {
	p.publish("detached", info)
}
