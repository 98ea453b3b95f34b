// Package events defines the messages exchanged between services over
// the event bus, and the topics that carry them. Producers and
// consumers share these types so the wire format has a single owner.
package events

import "time"

// Event bus topics.
const (
	// TopicDeviceData carries raw sensor readings from the ingestor to
	// the telemetry storage service.
	TopicDeviceData = "device-data-distribution"

	// TopicDeviceStatus carries device online/offline/error transitions
	// to the device registry and the alerting service.
	TopicDeviceStatus = "device-status-updates"

	// TopicPowerOutage carries mains power events to the alerting service.
	TopicPowerOutage = "power-outage-alert"
)

// Device status values carried on TopicDeviceStatus.
const (
	StatusOnline       = "ONLINE"
	StatusOffline      = "OFFLINE"
	StatusError        = "ERROR"
	StatusDisconnected = "DISCONNECTED"
)

// Power event values carried on TopicPowerOutage.
const (
	PowerOutage   = "OUTAGE"
	PowerRestored = "RESTORED"
)

// DeviceData is a batch of sensor readings from one device.
type DeviceData struct {
	// ClientID identifies the publishing device.
	ClientID string `json:"client_id"`

	// Readings maps measurement names to values, e.g. {"temperature": 21.5}.
	Readings map[string]float64 `json:"readings"`

	// Timestamp is when the device took the readings.
	Timestamp time.Time `json:"timestamp"`
}

// DeviceStatus is a device lifecycle transition.
type DeviceStatus struct {
	ClientID string `json:"client_id"`

	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Detail optionally elaborates on the transition (error text etc).
	Detail string `json:"detail,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// PowerOutageEvent is a mains power outage or restoration report.
type PowerOutageEvent struct {
	ClientID string `json:"client_id"`

	// Event is one of the Power* constants.
	Event string `json:"event"`

	// BatteryPercent is the device's remaining battery at report time,
	// -1 if the device did not include it.
	BatteryPercent int `json:"battery_percent"`

	Timestamp time.Time `json:"timestamp"`
}

// IsCriticalStatus reports whether a status transition warrants a
// critical alert. Online transitions are informational.
func IsCriticalStatus(status string) bool {
	switch status {
	case StatusOffline, StatusError, StatusDisconnected:
		return true
	default:
		return false
	}
}
