package device

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// newTestHandler builds the registry HTTP handler over a temp database.
func newTestHandler(t *testing.T, jwtSecret string) http.Handler {
	t.Helper()

	reg, _ := newTestRegistry(t, nil)
	srv := &Server{
		logger:    logging.Default("device-test"),
		registry:  reg,
		jwtSecret: jwtSecret,
		version:   "test",
	}
	return srv.buildRouter()
}

// doJSON performs a request with a JSON body and decodes the response.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestHandleCreateDevice(t *testing.T) {
	handler := newTestHandler(t, "")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "greenhouse-temp", Type: "temperature"}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %v", rec.Code, body)
	}

	device, ok := body["device"].(map[string]any)
	if !ok {
		t.Fatalf("response missing device object: %v", body)
	}
	if device["name"] != "greenhouse-temp" {
		t.Errorf("device name = %v, want greenhouse-temp", device["name"])
	}

	creds, ok := body["credentials"].(map[string]any)
	if !ok {
		t.Fatalf("response missing credentials object: %v", body)
	}
	if creds["mqtt_password"] == "" || creds["mqtt_password"] == nil {
		t.Error("credentials missing mqtt_password")
	}
	if creds["client_id"] != device["client_id"] {
		t.Errorf("credentials client_id %v != device client_id %v",
			creds["client_id"], device["client_id"])
	}
}

func TestHandleCreateDevice_Errors(t *testing.T) {
	handler := newTestHandler(t, "")

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "dup"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", rec.Code)
	}
	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "dup"}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409: %v", rec.Code, body)
	}
}

func TestHandleCreateDeviceCompat(t *testing.T) {
	handler := newTestHandler(t, "")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/devices/create_device",
		map[string]string{"device_name": "pump-house", "mqtt_username": "pumphouse01"}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %v", rec.Code, body)
	}
	if body["device_name"] != "pump-house" {
		t.Errorf("device_name = %v, want pump-house", body["device_name"])
	}
	if body["mqtt_username"] != "pumphouse01" {
		t.Errorf("mqtt_username = %v, want caller-chosen pumphouse01", body["mqtt_username"])
	}
	if body["mqtt_password"] == nil || body["mqtt_password"] == "" {
		t.Error("response missing mqtt_password")
	}
	if body["client_id"] == nil || body["client_id"] == "" {
		t.Error("response missing client_id")
	}
}

func TestHandleGetDevice(t *testing.T) {
	handler := newTestHandler(t, "")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "lookup-me"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	deviceUUID := body["device"].(map[string]any)["uuid"].(string)

	rec, got := doJSON(t, handler, http.MethodGet, "/api/v1/devices/"+deviceUUID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	if got["name"] != "lookup-me" {
		t.Errorf("name = %v, want lookup-me", got["name"])
	}
	if _, leaked := got["mqtt_password"]; leaked {
		t.Error("device response leaks mqtt_password")
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/devices/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", rec.Code)
	}
}

func TestHandleListDevices(t *testing.T) {
	handler := newTestHandler(t, "")

	for _, name := range []string{"one", "two", "three"} {
		rec, _ := doJSON(t, handler, http.MethodPost, "/api/v1/devices",
			CreateInput{Name: name}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s status = %d, want 201", name, rec.Code)
		}
	}

	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/devices?limit=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	devices := body["devices"].([]any)
	if len(devices) != 2 {
		t.Errorf("len(devices) = %d, want 2", len(devices))
	}
	if body["total"].(float64) != 3 {
		t.Errorf("total = %v, want 3", body["total"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	handler := newTestHandler(t, secret)

	// No token.
	rec, _ := doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "sensor"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	// Wrong scope.
	readToken, err := GenerateToken("tester", "devices:read", secret, 5)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "sensor"}, map[string]string{"Authorization": "Bearer " + readToken})
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong scope status = %d, want 403", rec.Code)
	}

	// Wrong secret.
	badToken, err := GenerateToken("tester", ScopeDevicesWrite, "other-secret", 5)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "sensor"}, map[string]string{"Authorization": "Bearer " + badToken})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d, want 401", rec.Code)
	}

	// Valid token.
	token, err := GenerateToken("tester", ScopeDevicesWrite, secret, 5)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/devices",
		CreateInput{Name: "sensor"}, map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusCreated {
		t.Errorf("valid token status = %d, want 201", rec.Code)
	}

	// Reads stay open.
	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/devices", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated list status = %d, want 200", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(t, "")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" || body["service"] != "deviced" {
		t.Errorf("unexpected health body %v", body)
	}
}
