package mqttauth

import "strings"

// MatchTopic reports whether a concrete topic matches an MQTT topic
// pattern.
//
// Matching is case-sensitive and /-delimited:
//   - "+" matches exactly one topic level.
//   - "#" matches zero or more trailing levels and only acts as a
//     wildcard when it is the final level of the pattern.
//   - "+" or "#" embedded inside a segment ("a+b") is a literal
//     character, not a wildcard.
//
// The function is total: every (pattern, topic) pair yields a boolean.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternSegs := strings.Split(pattern, "/")
	topicSegs := strings.Split(topic, "/")

	for i, seg := range patternSegs {
		if seg == "#" && i == len(patternSegs)-1 {
			// Trailing # swallows the rest of the topic, including
			// zero remaining levels.
			return true
		}
		if i >= len(topicSegs) {
			return false
		}
		if seg == "+" {
			continue
		}
		if seg != topicSegs[i] {
			return false
		}
	}

	return len(patternSegs) == len(topicSegs)
}
