package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/logging"
	"github.com/sensorstack/core/internal/infrastructure/mqtt"
)

// capturePublisher records published events in memory.
type capturePublisher struct {
	clientIDs []string
	published []any
}

func (c *capturePublisher) Publish(_ context.Context, clientID string, event any) error {
	c.clientIDs = append(c.clientIDs, clientID)
	c.published = append(c.published, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

var testTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// newTestDispatcher builds a dispatcher with capture publishers and a
// fixed clock.
func newTestDispatcher() (*Dispatcher, *capturePublisher, *capturePublisher, *capturePublisher) {
	data := &capturePublisher{}
	status := &capturePublisher{}
	power := &capturePublisher{}
	d := &Dispatcher{
		topics: mqtt.Topics{},
		log:    logging.Default("ingest-test"),
		data:   data,
		status: status,
		power:  power,
		now:    func() time.Time { return testTime },
	}
	return d, data, status, power
}

func TestDispatch_Telemetry(t *testing.T) {
	d, data, _, _ := newTestDispatcher()

	payload := `{"temperature": 21.5, "humidity": 40.25}`
	if err := d.dispatch("sensors/CLIENT01/telemetry", []byte(payload)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(data.published) != 1 {
		t.Fatalf("published %d events, want 1", len(data.published))
	}
	if data.clientIDs[0] != "CLIENT01" {
		t.Errorf("key = %q, want CLIENT01", data.clientIDs[0])
	}

	event := data.published[0].(*events.DeviceData)
	if event.ClientID != "CLIENT01" {
		t.Errorf("ClientID = %q, want CLIENT01", event.ClientID)
	}
	if event.Readings["temperature"] != 21.5 || event.Readings["humidity"] != 40.25 {
		t.Errorf("Readings = %v", event.Readings)
	}
	if !event.Timestamp.Equal(testTime) {
		t.Errorf("Timestamp = %v, want clock time %v", event.Timestamp, testTime)
	}
}

func TestDispatch_Telemetry_DeviceTimestamp(t *testing.T) {
	d, data, _, _ := newTestDispatcher()

	payload := `{"temperature": 19, "timestamp": "2026-02-28T23:15:00Z"}`
	if err := d.dispatch("sensors/CLIENT01/telemetry", []byte(payload)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	event := data.published[0].(*events.DeviceData)
	want := time.Date(2026, 2, 28, 23, 15, 0, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", event.Timestamp, want)
	}
}

func TestDispatch_Status(t *testing.T) {
	d, _, status, _ := newTestDispatcher()

	payload := `{"status": "online", "detail": "boot complete"}`
	if err := d.dispatch("sensors/CLIENT01/status", []byte(payload)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	event := status.published[0].(*events.DeviceStatus)
	if event.Status != events.StatusOnline {
		t.Errorf("Status = %q, want %q (upper-cased)", event.Status, events.StatusOnline)
	}
	if event.Detail != "boot complete" {
		t.Errorf("Detail = %q", event.Detail)
	}
}

func TestDispatch_PowerOutage(t *testing.T) {
	d, _, _, power := newTestDispatcher()

	if err := d.dispatch("sensors/CLIENT01/power_outage",
		[]byte(`{"event": "outage", "battery_percent": 87}`)); err != nil {
		t.Fatalf("dispatch outage: %v", err)
	}
	if err := d.dispatch("sensors/CLIENT01/power_outage",
		[]byte(`{"event": "RESTORED"}`)); err != nil {
		t.Fatalf("dispatch restored: %v", err)
	}

	outage := power.published[0].(*events.PowerOutageEvent)
	if outage.Event != events.PowerOutage || outage.BatteryPercent != 87 {
		t.Errorf("outage event = %+v", outage)
	}

	restored := power.published[1].(*events.PowerOutageEvent)
	if restored.Event != events.PowerRestored {
		t.Errorf("Event = %q, want %q", restored.Event, events.PowerRestored)
	}
	if restored.BatteryPercent != -1 {
		t.Errorf("BatteryPercent = %d, want -1 for absent", restored.BatteryPercent)
	}
}

func TestDispatch_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		errPart string
	}{
		{"outside namespace", "other/CLIENT01/telemetry", `{"t":1}`, "outside device namespace"},
		{"system topic", "sensors/system/ingestor", `{}`, "outside device namespace"},
		{"garbage telemetry", "sensors/CLIENT01/telemetry", `{not json`, "decoding telemetry"},
		{"empty telemetry", "sensors/CLIENT01/telemetry", `{}`, "no readings"},
		{"non-numeric reading", "sensors/CLIENT01/telemetry", `{"temperature": "warm"}`, "not numeric"},
		{"bad timestamp", "sensors/CLIENT01/telemetry", `{"t": 1, "timestamp": "yesterday"}`, "timestamp"},
		{"blank status", "sensors/CLIENT01/status", `{"detail": "x"}`, "missing status"},
		{"unknown power event", "sensors/CLIENT01/power_outage", `{"event": "BROWNOUT"}`, "unknown power event"},
		{"battery out of range", "sensors/CLIENT01/power_outage", `{"event": "OUTAGE", "battery_percent": 150}`, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, data, status, power := newTestDispatcher()
			err := d.dispatch(tt.topic, []byte(tt.payload))
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("dispatch error = %v, want containing %q", err, tt.errPart)
			}
			if len(data.published)+len(status.published)+len(power.published) != 0 {
				t.Error("rejected message was still published")
			}
		})
	}
}

func TestDispatch_IgnoresCommandEcho(t *testing.T) {
	d, data, status, power := newTestDispatcher()

	if err := d.dispatch("sensors/CLIENT01/command", []byte(`{"cmd": "reboot"}`)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(data.published)+len(status.published)+len(power.published) != 0 {
		t.Error("command message was published to the event bus")
	}
}
