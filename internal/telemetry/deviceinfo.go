package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DeviceInfo is the device metadata joined onto telemetry points.
type DeviceInfo struct {
	ClientID     string `json:"client_id"`
	MQTTUsername string `json:"mqtt_username"`
	DeviceRef    string `json:"device_ref,omitempty"`
	DeviceName   string `json:"device_name,omitempty"`
}

// InfoSource resolves device metadata by MQTT client id.
// Implemented by InfoClient; faked in tests.
type InfoSource interface {
	Lookup(ctx context.Context, clientID string) (*DeviceInfo, error)
}

// lookupTimeout bounds one metadata lookup round trip.
const lookupTimeout = 5 * time.Second

// cacheEntry is one cached lookup result. A nil info caches a miss so
// unknown devices do not hammer the authority on every reading.
type cacheEntry struct {
	info      *DeviceInfo
	expiresAt time.Time
}

// InfoClient resolves device metadata from the credential authority
// with a TTL cache in front.
//
// Thread Safety: all methods are safe for concurrent use.
type InfoClient struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry

	// now is replaceable for tests.
	now func() time.Time
}

// NewInfoClient creates a metadata client for the given authority base
// URL. ttl bounds how long lookups (hits and misses) are reused.
func NewInfoClient(baseURL string, ttl time.Duration) *InfoClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &InfoClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: lookupTimeout},
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Lookup returns device metadata for a client id, consulting the cache
// first. Unknown devices return (nil, nil).
func (c *InfoClient) Lookup(ctx context.Context, clientID string) (*DeviceInfo, error) {
	c.mu.RLock()
	entry, ok := c.cache[clientID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.info, nil
	}

	info, err := c.fetch(ctx, clientID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[clientID] = cacheEntry{info: info, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return info, nil
}

// fetch performs the HTTP lookup. A 404 is not an error, it is a miss.
func (c *InfoClient) fetch(ctx context.Context, clientID string) (*DeviceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/mqtt/device-info/"+clientID, nil)
	if err != nil {
		return nil, fmt.Errorf("building device-info request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling device-info: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	switch resp.StatusCode {
	case http.StatusOK:
		var info DeviceInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("decoding device-info response: %w", err)
		}
		return &info, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("device-info returned status %d", resp.StatusCode)
	}
}

// CacheSize returns the number of cached entries, expired included.
func (c *InfoClient) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
