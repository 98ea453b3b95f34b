package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sensorstack/core/internal/events"
)

// Devices publish flat JSON objects of measurement name to numeric
// value, with an optional RFC 3339 "timestamp" field:
//
//	{"temperature": 21.5, "humidity": 40.2, "timestamp": "2026-03-01T08:00:00Z"}
//
// A missing timestamp means "now".

// decodeTelemetry parses a telemetry payload into a DeviceData event.
func decodeTelemetry(clientID string, payload []byte, now time.Time) (*events.DeviceData, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decoding telemetry payload: %w", err)
	}

	data := &events.DeviceData{
		ClientID:  clientID,
		Readings:  make(map[string]float64, len(raw)),
		Timestamp: now,
	}

	for key, value := range raw {
		if key == "timestamp" {
			str, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("telemetry timestamp is not a string")
			}
			ts, err := time.Parse(time.RFC3339, str)
			if err != nil {
				return nil, fmt.Errorf("parsing telemetry timestamp: %w", err)
			}
			data.Timestamp = ts
			continue
		}

		num, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("telemetry field %q is not numeric", key)
		}
		data.Readings[key] = num
	}

	if len(data.Readings) == 0 {
		return nil, fmt.Errorf("telemetry payload has no readings")
	}
	return data, nil
}

// statusPayload is the device status announcement.
type statusPayload struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// decodeStatus parses a status payload into a DeviceStatus event.
// Status values are normalized to upper case.
func decodeStatus(clientID string, payload []byte, now time.Time) (*events.DeviceStatus, error) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding status payload: %w", err)
	}
	if p.Status == "" {
		return nil, fmt.Errorf("status payload missing status")
	}

	return &events.DeviceStatus{
		ClientID:  clientID,
		Status:    strings.ToUpper(p.Status),
		Detail:    p.Detail,
		Timestamp: now,
	}, nil
}

// powerPayload is the device power event announcement. BatteryPercent
// is optional.
type powerPayload struct {
	Event          string `json:"event"`
	BatteryPercent *int   `json:"battery_percent"`
}

// decodePowerOutage parses a power event payload. An absent battery
// level becomes -1.
func decodePowerOutage(clientID string, payload []byte, now time.Time) (*events.PowerOutageEvent, error) {
	var p powerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding power payload: %w", err)
	}

	event := strings.ToUpper(p.Event)
	if event != events.PowerOutage && event != events.PowerRestored {
		return nil, fmt.Errorf("unknown power event %q", p.Event)
	}

	battery := -1
	if p.BatteryPercent != nil {
		battery = *p.BatteryPercent
		if battery < 0 || battery > 100 {
			return nil, fmt.Errorf("battery percent %d out of range", battery)
		}
	}

	return &events.PowerOutageEvent{
		ClientID:       clientID,
		Event:          event,
		BatteryPercent: battery,
		Timestamp:      now,
	}, nil
}
