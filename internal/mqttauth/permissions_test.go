package mqttauth

import "testing"

func TestPermissionSet_DefaultDeny(t *testing.T) {
	var empty PermissionSet

	if empty.Allows("sensors/X1/telemetry", ActionPublish, 0) {
		t.Error("empty permission set should deny everything")
	}
	if empty.Allows("", ActionSubscribe, 2) {
		t.Error("empty permission set should deny everything")
	}
}

func TestPermissionSet_Allows(t *testing.T) {
	set := PermissionSet{
		{
			TopicPattern: "sensors/X1/telemetry",
			Action:       ActionPublish,
			Effect:       EffectAllow,
			AllowedQoS:   AllQoS,
		},
		{
			TopicPattern: "sensors/X1/command",
			Action:       ActionSubscribe,
			Effect:       EffectAllow,
			AllowedQoS:   NewQoSSet(0, 1),
		},
		{
			TopicPattern: "sensors/+/status",
			Action:       ActionAll,
			Effect:       EffectAllow,
			AllowedQoS:   AllQoS,
		},
	}

	tests := []struct {
		name   string
		topic  string
		action Action
		qos    int
		want   bool
	}{
		{"matching publish", "sensors/X1/telemetry", ActionPublish, 1, true},
		{"wrong action", "sensors/X1/telemetry", ActionSubscribe, 1, false},
		{"wrong topic", "sensors/X2/telemetry", ActionPublish, 1, false},
		{"qos outside rule set", "sensors/X1/command", ActionSubscribe, 2, false},
		{"qos inside rule set", "sensors/X1/command", ActionSubscribe, 1, true},
		{"ALL covers publish", "sensors/anything/status", ActionPublish, 0, true},
		{"ALL covers subscribe", "sensors/anything/status", ActionSubscribe, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.Allows(tt.topic, tt.action, tt.qos); got != tt.want {
				t.Errorf("Allows(%q, %s, %d) = %v, want %v", tt.topic, tt.action, tt.qos, got, tt.want)
			}
		})
	}
}

func TestPermissionSet_DenyRulesAreInert(t *testing.T) {
	// Default-deny makes DENY rules unreachable: they never grant, and
	// absence of an ALLOW match already denies.
	denyOnly := PermissionSet{
		{
			TopicPattern: "sensors/X1/telemetry",
			Action:       ActionPublish,
			Effect:       EffectDeny,
			AllowedQoS:   AllQoS,
		},
	}
	if denyOnly.Allows("sensors/X1/telemetry", ActionPublish, 0) {
		t.Error("DENY rule must not grant access")
	}

	allowAndDeny := PermissionSet{
		{
			TopicPattern: "sensors/X1/telemetry",
			Action:       ActionPublish,
			Effect:       EffectDeny,
			AllowedQoS:   AllQoS,
		},
		{
			TopicPattern: "sensors/X1/telemetry",
			Action:       ActionPublish,
			Effect:       EffectAllow,
			AllowedQoS:   AllQoS,
		},
	}
	if !allowAndDeny.Allows("sensors/X1/telemetry", ActionPublish, 0) {
		t.Error("DENY rule must not override a matching ALLOW rule")
	}
}

func TestDefaultPermissions(t *testing.T) {
	perms := PermissionSet(DefaultPermissions("X1"))

	if len(perms) != 4 {
		t.Fatalf("DefaultPermissions returned %d rules, want 4", len(perms))
	}

	allowed := []struct {
		topic  string
		action Action
	}{
		{"sensors/X1/telemetry", ActionPublish},
		{"sensors/X1/status", ActionPublish},
		{"sensors/X1/power_outage", ActionPublish},
		{"sensors/X1/command", ActionSubscribe},
	}
	for _, a := range allowed {
		for qos := 0; qos <= 2; qos++ {
			if !perms.Allows(a.topic, a.action, qos) {
				t.Errorf("default set should allow %s on %s at qos %d", a.action, a.topic, qos)
			}
		}
	}

	denied := []struct {
		topic  string
		action Action
	}{
		{"sensors/X1/command", ActionPublish},
		{"sensors/X1/telemetry", ActionSubscribe},
		{"sensors/X2/telemetry", ActionPublish},
	}
	for _, d := range denied {
		if perms.Allows(d.topic, d.action, 0) {
			t.Errorf("default set should deny %s on %s", d.action, d.topic)
		}
	}
}

func TestQoSSet(t *testing.T) {
	s := NewQoSSet(0, 2)

	if !s.Contains(0) || s.Contains(1) || !s.Contains(2) {
		t.Errorf("NewQoSSet(0,2) membership wrong: %v", s.Levels())
	}
	if s.Contains(-1) || s.Contains(3) {
		t.Error("out-of-range levels should never be contained")
	}
	if got := AllQoS.Levels(); len(got) != 3 {
		t.Errorf("AllQoS.Levels() = %v, want three levels", got)
	}
	if NewQoSSet().Contains(0) {
		t.Error("empty set should contain nothing")
	}
}
