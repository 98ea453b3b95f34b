package mqtt

import (
	"fmt"
	"strings"
)

// Device message types published under the device topic namespace.
// Topics follow the pattern {root}/{clientID}/{type}.
const (
	TypeTelemetry   = "telemetry"
	TypeStatus      = "status"
	TypePowerOutage = "power_outage"
	TypeCommand     = "command"
)

// Topics builds topic strings for the device namespace.
//
// The zero value uses "sensors" as the root segment; set Root to
// override (matches the ingestor.topic_root config key).
type Topics struct {
	Root string
}

// root returns the configured root segment, defaulting to "sensors".
func (t Topics) root() string {
	if t.Root == "" {
		return "sensors"
	}
	return t.Root
}

// Device returns the topic for a specific device and message type.
//
// Example:
//
//	Topics{}.Device("A1B2C3D4", TypeTelemetry) // "sensors/A1B2C3D4/telemetry"
func (t Topics) Device(clientID, msgType string) string {
	return fmt.Sprintf("%s/%s/%s", t.root(), clientID, msgType)
}

// DeviceTelemetry returns the telemetry topic for a device.
func (t Topics) DeviceTelemetry(clientID string) string {
	return t.Device(clientID, TypeTelemetry)
}

// DeviceStatus returns the status topic for a device.
func (t Topics) DeviceStatus(clientID string) string {
	return t.Device(clientID, TypeStatus)
}

// DevicePowerOutage returns the power outage topic for a device.
func (t Topics) DevicePowerOutage(clientID string) string {
	return t.Device(clientID, TypePowerOutage)
}

// DeviceCommand returns the command topic for a device.
func (t Topics) DeviceCommand(clientID string) string {
	return t.Device(clientID, TypeCommand)
}

// AllDevices returns the wildcard pattern matching every message from
// every device: {root}/+/+. The single-level wildcards keep command
// responses and deeper namespaces out of the ingest stream.
func (t Topics) AllDevices() string {
	return t.root() + "/+/+"
}

// SystemStatus returns the service status topic used for online/offline
// announcements and the Last Will and Testament.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/ingestor"
}

// ParseDevice extracts the device client ID and message type from a
// topic in the device namespace.
//
// Returns ok=false for topics outside {root}/{clientID}/{type}.
func (t Topics) ParseDevice(topic string) (clientID, msgType string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != t.root() {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" || parts[1] == "system" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
