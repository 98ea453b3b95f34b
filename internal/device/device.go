package device

import (
	"errors"
	"time"
)

// Domain errors. Use errors.Is() to check for these in calling code.
var (
	// ErrDeviceNotFound is returned when no device matches the lookup.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrNameExists is returned when registering a device name that is
	// already taken.
	ErrNameExists = errors.New("device: name already exists")

	// ErrInvalidDevice is returned for blank or malformed device fields.
	ErrInvalidDevice = errors.New("device: invalid device")
)

// Device status values mirror the event bus status constants.
const (
	StatusUnknown      = "UNKNOWN"
	StatusOnline       = "ONLINE"
	StatusOffline      = "OFFLINE"
	StatusError        = "ERROR"
	StatusDisconnected = "DISCONNECTED"
)

// Device is a registered sensor with its MQTT identity.
type Device struct {
	// UUID is the registry identifier, also used as the external
	// correlation id (device_ref) on the MQTT account.
	UUID string `json:"uuid"`

	// Name is unique and human-readable.
	Name string `json:"name"`

	// Type describes the sensor kind (e.g. "temperature", "multi").
	Type string `json:"type"`

	// Location is an optional free-form placement hint.
	Location string `json:"location,omitempty"`

	// MQTTUsername and ClientID identify the device's broker account.
	MQTTUsername string `json:"mqtt_username"`
	ClientID     string `json:"client_id"`

	// Status is the last known lifecycle state, updated from the event bus.
	Status string `json:"status"`

	// LastSeenAt is when the last status update arrived, zero if never.
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credentials carries the one-time MQTT secret returned on creation.
// Never persisted by the registry.
type Credentials struct {
	MQTTUsername string `json:"mqtt_username"`
	MQTTPassword string `json:"mqtt_password"`
	ClientID     string `json:"client_id"`
}

// Page is one page of a device listing.
type Page struct {
	Devices []Device `json:"devices"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}
