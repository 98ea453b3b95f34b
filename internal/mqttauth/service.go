package mqttauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// Options tunes the evaluators and the provisioner.
type Options struct {
	// EnforceClientID additionally requires the connecting client id to
	// equal the account's provisioned client id during authentication.
	EnforceClientID bool

	// DecisionTimeout bounds a single auth/ACL decision. On expiry the
	// decision is deny.
	DecisionTimeout time.Duration

	// PasswordLength is the length of generated plaintext credentials.
	PasswordLength int

	// ClientIDAttempts bounds the unique client id allocation loop.
	ClientIDAttempts int
}

// Service answers broker authentication/authorization webhooks and
// provisions new accounts.
//
// All methods are safe for concurrent use; the repository is the only
// shared state.
type Service struct {
	repo AccountRepository
	opts Options
	log  *logging.Logger
}

// NewService wires the service with its repository and options.
func NewService(repo AccountRepository, opts Options, log *logging.Logger) *Service {
	if opts.DecisionTimeout <= 0 {
		opts.DecisionTimeout = 5 * time.Second
	}
	if opts.PasswordLength <= 0 {
		opts.PasswordLength = 8
	}
	if opts.ClientIDAttempts <= 0 {
		opts.ClientIDAttempts = 5
	}
	return &Service{repo: repo, opts: opts, log: log}
}

// Authenticate decides whether a username/password/client-id triple may
// connect.
//
// Unknown username, wrong password, lookup failure and timeout all
// resolve to deny. Failures are logged, never surfaced: the broker hook
// needs a definitive answer.
func (s *Service) Authenticate(ctx context.Context, username, password, clientID string) Decision {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DecisionTimeout)
	defer cancel()

	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			s.log.Error("authentication lookup failed", "username", username, "error", err)
		}
		return deny
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		s.log.Error("password verification failed", "username", username, "error", err)
		return deny
	}
	if !ok {
		return deny
	}

	if s.opts.EnforceClientID && clientID != account.ClientID {
		return deny
	}

	return allow
}

// Authorize decides whether an account may perform an action on a topic
// at a QoS level.
//
// Default-deny: no matching ALLOW rule, unknown username, lookup
// failure and timeout all resolve to deny.
func (s *Service) Authorize(ctx context.Context, username, topic string, action Action, qos int) Decision {
	ctx, cancel := context.WithTimeout(ctx, s.opts.DecisionTimeout)
	defer cancel()

	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			s.log.Error("authorization lookup failed", "username", username, "error", err)
		}
		return deny
	}

	if PermissionSet(account.Permissions).Allows(topic, action, qos) {
		return allow
	}
	return deny
}

// Provision creates a new account: a globally unique client id, a
// random credential, and the default permission set, persisted
// atomically. The returned account carries the plaintext password
// exactly once; only the hash is stored.
//
// The client id allocation loop is bounded. An existence check keeps
// the common path cheap, but two concurrent calls can both pass it for
// the same candidate, so a unique-constraint violation on persist is
// treated as a collision and re-enters the loop. The storage constraint
// is the source of truth.
//
// Failure modes: ErrInvalidRequest (blank username), ErrUsernameExists,
// ErrClientIDExhausted, or a wrapped repository error.
func (s *Service) Provision(ctx context.Context, username, deviceRef string) (*Account, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}

	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if taken {
		return nil, ErrUsernameExists
	}

	for attempt := 1; attempt <= s.opts.ClientIDAttempts; attempt++ {
		clientID, err := GenerateClientID()
		if err != nil {
			return nil, fmt.Errorf("generating client id: %w", err)
		}

		exists, err := s.repo.ClientIDExists(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("checking client id: %w", err)
		}
		if exists {
			s.log.Warn("client id collision, retrying", "attempt", attempt)
			continue
		}

		password, err := GeneratePassword(s.opts.PasswordLength)
		if err != nil {
			return nil, fmt.Errorf("generating password: %w", err)
		}

		hash, err := HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}

		account := &Account{
			Username:     username,
			PasswordHash: hash,
			ClientID:     clientID,
			DeviceRef:    deviceRef,
			Permissions:  DefaultPermissions(clientID),
		}

		err = s.repo.Create(ctx, account)
		switch {
		case err == nil:
			account.Password = password
			s.log.Info("account provisioned",
				"username", username,
				"client_id", clientID,
			)
			return account, nil
		case errors.Is(err, ErrClientIDExists):
			// Lost the race against a concurrent provision for the
			// same candidate id. Retry with a fresh one.
			s.log.Warn("client id collision on persist, retrying", "attempt", attempt)
			continue
		case errors.Is(err, ErrUsernameExists):
			return nil, ErrUsernameExists
		default:
			return nil, fmt.Errorf("persisting account: %w", err)
		}
	}

	return nil, ErrClientIDExhausted
}

// DeviceInfo returns the stored account for a client id, used to join
// device metadata into telemetry lookups.
func (s *Service) DeviceInfo(ctx context.Context, clientID string) (*Account, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidRequest)
	}
	return s.repo.GetByClientID(ctx, clientID)
}
