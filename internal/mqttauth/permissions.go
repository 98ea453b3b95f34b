package mqttauth

import "fmt"

// PermissionSet evaluates an account's ACL rules.
type PermissionSet []Permission

// Allows reports whether any ALLOW rule in the set matches the given
// topic, covers the action, and includes the QoS level.
//
// Absence of a matching rule means deny (default-deny policy). DENY
// rules never grant and, under default-deny, never need to revoke, so
// they do not participate in evaluation.
func (ps PermissionSet) Allows(topic string, action Action, qos int) bool {
	for _, p := range ps {
		if p.Effect != EffectAllow {
			continue
		}
		if !p.Action.covers(action) {
			continue
		}
		if !p.AllowedQoS.Contains(qos) {
			continue
		}
		if MatchTopic(p.TopicPattern, topic) {
			return true
		}
	}
	return false
}

// DefaultPermissions builds the permission set seeded onto every new
// account: the device may publish its own telemetry, status and power
// outage topics and subscribe to its own command topic, all at any QoS.
func DefaultPermissions(clientID string) []Permission {
	publishTopics := []string{"telemetry", "status", "power_outage"}

	perms := make([]Permission, 0, len(publishTopics)+1)
	for _, t := range publishTopics {
		perms = append(perms, Permission{
			TopicPattern: fmt.Sprintf("sensors/%s/%s", clientID, t),
			Action:       ActionPublish,
			Effect:       EffectAllow,
			AllowedQoS:   AllQoS,
		})
	}

	perms = append(perms, Permission{
		TopicPattern: fmt.Sprintf("sensors/%s/command", clientID),
		Action:       ActionSubscribe,
		Effect:       EffectAllow,
		AllowedQoS:   AllQoS,
	})

	return perms
}
