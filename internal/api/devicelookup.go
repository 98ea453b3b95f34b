package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// registryLookupTimeout bounds one device name lookup.
const registryLookupTimeout = 5 * time.Second

// RegistryClient resolves device names from the device registry
// service. It implements DeviceLookup.
type RegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewRegistryClient creates a lookup client for the given deviced base URL.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: registryLookupTimeout},
	}
}

// DeviceName returns the registered name for a device reference, or an
// empty string when the registry does not know it.
func (c *RegistryClient) DeviceName(ctx context.Context, deviceRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/devices/"+deviceRef, nil)
	if err != nil {
		return "", fmt.Errorf("building registry request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling device registry: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	switch resp.StatusCode {
	case http.StatusOK:
		var device struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
			return "", fmt.Errorf("decoding registry response: %w", err)
		}
		return device.Name, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("device registry returned status %d", resp.StatusCode)
	}
}
