package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthACLClient_CreateAccount(t *testing.T) {
	var gotBody createAccountRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/mqtt/create_account" {
			t.Errorf("path = %q, want /api/v1/mqtt/create_account", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Credentials{ //nolint:errcheck // test response
			MQTTUsername: gotBody.MQTTUsername,
			MQTTPassword: "s3cret",
			ClientID:     "CLIENT01",
		})
	}))
	defer ts.Close()

	client := NewAuthACLClient(ts.URL)
	creds, err := client.CreateAccount(context.Background(), "uuid-1", "dev-uuid1")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if gotBody.DeviceUUID != "uuid-1" || gotBody.MQTTUsername != "dev-uuid1" {
		t.Errorf("request body = %+v", gotBody)
	}
	if creds.ClientID != "CLIENT01" || creds.MQTTPassword != "s3cret" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestAuthACLClient_CreateAccount_Conflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	client := NewAuthACLClient(ts.URL)
	_, err := client.CreateAccount(context.Background(), "uuid-1", "dev-uuid1")
	if !errors.Is(err, ErrProvisioningConflict) {
		t.Errorf("error = %v, want ErrProvisioningConflict", err)
	}
}

func TestAuthACLClient_CreateAccount_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewAuthACLClient(ts.URL)
	if _, err := client.CreateAccount(context.Background(), "uuid-1", "dev-uuid1"); err == nil {
		t.Error("CreateAccount accepted a 503 response")
	}
}
