package mqtt

import "testing"

func TestTopics_Device(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"telemetry", topics.DeviceTelemetry("A1B2C3D4"), "sensors/A1B2C3D4/telemetry"},
		{"status", topics.DeviceStatus("A1B2C3D4"), "sensors/A1B2C3D4/status"},
		{"power outage", topics.DevicePowerOutage("A1B2C3D4"), "sensors/A1B2C3D4/power_outage"},
		{"command", topics.DeviceCommand("A1B2C3D4"), "sensors/A1B2C3D4/command"},
		{"wildcard", topics.AllDevices(), "sensors/+/+"},
		{"system status", topics.SystemStatus(), "sensors/system/ingestor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_CustomRoot(t *testing.T) {
	topics := Topics{Root: "devices"}

	if got := topics.DeviceTelemetry("X1"); got != "devices/X1/telemetry" {
		t.Errorf("DeviceTelemetry = %q", got)
	}
	if got := topics.AllDevices(); got != "devices/+/+" {
		t.Errorf("AllDevices = %q", got)
	}
}

func TestTopics_ParseDevice(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name         string
		topic        string
		wantClientID string
		wantType     string
		wantOK       bool
	}{
		{
			name:         "telemetry topic",
			topic:        "sensors/A1B2C3D4/telemetry",
			wantClientID: "A1B2C3D4",
			wantType:     "telemetry",
			wantOK:       true,
		},
		{
			name:         "power outage topic",
			topic:        "sensors/ZZ99/power_outage",
			wantClientID: "ZZ99",
			wantType:     "power_outage",
			wantOK:       true,
		},
		{
			name:   "wrong root",
			topic:  "other/A1B2C3D4/telemetry",
			wantOK: false,
		},
		{
			name:   "too few segments",
			topic:  "sensors/A1B2C3D4",
			wantOK: false,
		},
		{
			name:   "too many segments",
			topic:  "sensors/A1B2C3D4/telemetry/extra",
			wantOK: false,
		},
		{
			name:   "system namespace excluded",
			topic:  "sensors/system/ingestor",
			wantOK: false,
		},
		{
			name:   "empty segments",
			topic:  "sensors//telemetry",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientID, msgType, ok := topics.ParseDevice(tt.topic)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if clientID != tt.wantClientID {
				t.Errorf("clientID = %q, want %q", clientID, tt.wantClientID)
			}
			if msgType != tt.wantType {
				t.Errorf("msgType = %q, want %q", msgType, tt.wantType)
			}
		})
	}
}
