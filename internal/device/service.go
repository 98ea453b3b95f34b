package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// Name constraints for registered devices.
const (
	maxNameLength     = 64
	maxTypeLength     = 32
	maxLocationLength = 128
)

// Registry is the device service: it validates and persists device
// records and obtains their MQTT identities from the credential
// authority.
type Registry struct {
	repo   Repository
	issuer CredentialIssuer
	log    *logging.Logger

	pageSize    int
	maxPageSize int
}

// NewRegistry wires the registry with its repository and credential issuer.
func NewRegistry(repo Repository, issuer CredentialIssuer, pageSize, maxPageSize int, log *logging.Logger) *Registry {
	if pageSize <= 0 {
		pageSize = 20
	}
	if maxPageSize < pageSize {
		maxPageSize = pageSize
	}
	return &Registry{
		repo:        repo,
		issuer:      issuer,
		log:         log,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
	}
}

// CreateInput is the caller-supplied part of a new device.
// MQTTUsername is optional; when blank one is derived from the device
// UUID.
type CreateInput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Location     string `json:"location"`
	MQTTUsername string `json:"mqtt_username,omitempty"`
}

// validate checks the input fields.
func (in CreateInput) validate() error {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	case len(in.Type) > maxTypeLength:
		return fmt.Errorf("%w: type exceeds %d characters", ErrInvalidDevice, maxTypeLength)
	case len(in.Location) > maxLocationLength:
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidDevice, maxLocationLength)
	case len(in.MQTTUsername) > maxNameLength:
		return fmt.Errorf("%w: mqtt_username exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// Create registers a new device.
//
// It mints the registry UUID, derives the MQTT username from it,
// obtains credentials from the authority, and persists the record. The
// returned Credentials carry the plaintext password exactly once.
//
// If persisting fails after the account was created the orphaned
// account stays behind on the authority side; the next attempt uses a
// fresh UUID and username, so the orphan never blocks retries.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*Device, *Credentials, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	deviceUUID := uuid.NewString()
	mqttUsername := strings.TrimSpace(in.MQTTUsername)
	if mqttUsername == "" {
		mqttUsername = "dev-" + deviceUUID[:8]
	}

	creds, err := r.issuer.CreateAccount(ctx, deviceUUID, mqttUsername)
	if err != nil {
		return nil, nil, fmt.Errorf("provisioning credentials: %w", err)
	}

	device := &Device{
		UUID:         deviceUUID,
		Name:         strings.TrimSpace(in.Name),
		Type:         in.Type,
		Location:     in.Location,
		MQTTUsername: creds.MQTTUsername,
		ClientID:     creds.ClientID,
		Status:       StatusUnknown,
	}

	if err := r.repo.Create(ctx, device); err != nil {
		r.log.Error("device persist failed after account provisioning",
			"device_uuid", deviceUUID,
			"client_id", creds.ClientID,
			"error", err,
		)
		return nil, nil, fmt.Errorf("persisting device: %w", err)
	}

	r.log.Info("device registered",
		"device_uuid", deviceUUID,
		"name", device.Name,
		"client_id", device.ClientID,
	)

	return device, creds, nil
}

// Get returns a device by its registry UUID.
func (r *Registry) Get(ctx context.Context, deviceUUID string) (*Device, error) {
	return r.repo.GetByUUID(ctx, deviceUUID)
}

// List returns one page of devices. Limit 0 means the default page
// size; limits above the maximum are clamped.
func (r *Registry) List(ctx context.Context, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = r.pageSize
	}
	if limit > r.maxPageSize {
		limit = r.maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	devices, err := r.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := r.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &Page{
		Devices: devices,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}
