package mqttauth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors. Use errors.Is() to check for these in calling code.
var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("mqttauth: account not found")

	// ErrUsernameExists is returned when provisioning a username that is
	// already taken.
	ErrUsernameExists = errors.New("mqttauth: username already exists")

	// ErrClientIDExists is returned by the repository when persisting an
	// account whose client id collides with an existing one. The
	// provisioner treats this as a retryable collision.
	ErrClientIDExists = errors.New("mqttauth: client id already exists")

	// ErrClientIDExhausted is returned when the bounded client id
	// allocation loop runs out of attempts.
	ErrClientIDExhausted = errors.New("mqttauth: client id allocation exhausted")

	// ErrInvalidRequest is returned for blank or missing required fields.
	ErrInvalidRequest = errors.New("mqttauth: invalid request")
)

// Action is the MQTT operation a permission rule applies to.
type Action string

// Permission actions.
const (
	ActionPublish   Action = "PUBLISH"
	ActionSubscribe Action = "SUBSCRIBE"
	ActionAll       Action = "ALL"
)

// ParseAction normalises a broker-supplied action string.
// Brokers send lowercase ("publish", "subscribe").
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(s) {
	case "PUBLISH":
		return ActionPublish, nil
	case "SUBSCRIBE":
		return ActionSubscribe, nil
	case "ALL":
		return ActionAll, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, s)
	}
}

// covers reports whether a rule with this action applies to the
// requested action.
func (a Action) covers(requested Action) bool {
	return a == ActionAll || a == requested
}

// Effect is whether a permission rule grants or withholds access.
//
// DENY rules are stored but inert: evaluation is default-deny, so a
// request not matched by any ALLOW rule is denied regardless.
type Effect string

// Permission effects.
const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// QoSSet is a set of MQTT quality-of-service levels, stored as a
// bitmask (bit n set means QoS n is allowed).
type QoSSet uint8

// AllQoS permits QoS 0, 1 and 2.
const AllQoS QoSSet = 0b111

// NewQoSSet builds a set from individual levels. Levels outside 0-2
// are ignored.
func NewQoSSet(levels ...int) QoSSet {
	var s QoSSet
	for _, l := range levels {
		if l >= 0 && l <= 2 {
			s |= 1 << uint(l)
		}
	}
	return s
}

// Contains reports whether the given QoS level is in the set.
func (s QoSSet) Contains(qos int) bool {
	if qos < 0 || qos > 2 {
		return false
	}
	return s&(1<<uint(qos)) != 0
}

// Levels returns the levels in the set in ascending order.
func (s QoSSet) Levels() []int {
	levels := make([]int, 0, 3)
	for l := 0; l <= 2; l++ {
		if s.Contains(l) {
			levels = append(levels, l)
		}
	}
	return levels
}

// Permission is one ACL rule scoped to an account.
type Permission struct {
	// ID is assigned by the repository.
	ID int64

	// AccountID links the rule to its owning account.
	AccountID string

	// TopicPattern may contain + and # wildcards per MQTT semantics.
	TopicPattern string

	Action Action
	Effect Effect

	// AllowedQoS must be non-empty for ALLOW rules to be satisfiable.
	AllowedQoS QoSSet
}

// Account is an identity bound to one MQTT client.
type Account struct {
	// ID is the surrogate key, assigned by the repository.
	ID string

	// Username is unique and immutable after creation.
	Username string

	// PasswordHash is the Argon2id PHC hash of the credential.
	PasswordHash string

	// Password carries the plaintext credential exactly once, on the
	// account returned from provisioning. Never persisted, never logged.
	Password string

	// ClientID is the unique MQTT client identifier.
	ClientID string

	// DeviceRef optionally correlates the account with an external
	// device record.
	DeviceRef string

	Permissions []Permission

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decision is the sole output of the evaluators. Decisions are never
// partial.
type Decision struct {
	Allow bool
}

// allow and deny are the two decision values.
var (
	allow = Decision{Allow: true}
	deny  = Decision{Allow: false}
)
