package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProvisioningConflict is returned when the credential authority
// rejects the requested MQTT username as already taken.
var ErrProvisioningConflict = errors.New("device: mqtt username conflict")

// CredentialIssuer provisions MQTT credentials for a new device.
// Implemented by the authacld HTTP client; faked in tests.
type CredentialIssuer interface {
	CreateAccount(ctx context.Context, deviceUUID, mqttUsername string) (*Credentials, error)
}

// provisionTimeout bounds one provisioning round trip. Argon2id hashing
// on the far side makes this slower than a plain lookup.
const provisionTimeout = 15 * time.Second

// AuthACLClient is the HTTP client for the authacld provisioning endpoint.
type AuthACLClient struct {
	baseURL string
	client  *http.Client
}

// NewAuthACLClient creates a client for the given authacld base URL.
func NewAuthACLClient(baseURL string) *AuthACLClient {
	return &AuthACLClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: provisionTimeout},
	}
}

// createAccountRequest mirrors the authacld provisioning payload.
type createAccountRequest struct {
	DeviceUUID   string `json:"device_uuid"`
	MQTTUsername string `json:"mqtt_username"`
}

// CreateAccount requests MQTT credentials from authacld.
//
// Returns ErrProvisioningConflict when the username is taken, a wrapped
// error for transport failures or non-2xx responses otherwise.
func (c *AuthACLClient) CreateAccount(ctx context.Context, deviceUUID, mqttUsername string) (*Credentials, error) {
	body, err := json.Marshal(createAccountRequest{
		DeviceUUID:   deviceUUID,
		MQTTUsername: mqttUsername,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding provisioning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/mqtt/create_account", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building provisioning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling credential authority: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	switch {
	case resp.StatusCode == http.StatusCreated:
		var creds Credentials
		if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
			return nil, fmt.Errorf("decoding provisioning response: %w", err)
		}
		return &creds, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrProvisioningConflict
	default:
		return nil, fmt.Errorf("credential authority returned status %d", resp.StatusCode)
	}
}
