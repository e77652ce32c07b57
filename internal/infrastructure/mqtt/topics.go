package mqtt

import "fmt"

// Topic layout:
//
//	growdash/system/status                     retained service status
//	growdash/device/{public_id}/presence       retained attach state
//	growdash/device/{public_id}/telemetry      measurement stream
const topicPrefix = "growdash"

// SystemStatusTopic is the retained online/offline topic for this
// service instance.
func SystemStatusTopic() string {
	return topicPrefix + "/system/status"
}

// DevicePresenceTopic is the retained presence topic for one device.
func DevicePresenceTopic(publicID string) string {
	return fmt.Sprintf("%s/device/%s/presence", topicPrefix, publicID)
}

// DeviceTelemetryTopic is the measurement topic for one device.
func DeviceTelemetryTopic(publicID string) string {
	return fmt.Sprintf("%s/device/%s/telemetry", topicPrefix, publicID)
}
