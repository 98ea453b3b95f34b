package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sensorstack/core/internal/mqttauth"
)

// Broker decision results. The hook contract carries the decision in
// the body; HTTP 200 is used for both outcomes.
const (
	resultAllow = "allow"
	resultDeny  = "deny"
)

// authRequest is the broker authentication hook payload.
type authRequest struct {
	ClientID   string `json:"clientid"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	PeerHost   string `json:"peerhost"`
	Mountpoint string `json:"mountpoint"`
}

// aclRequest is the broker authorization hook payload.
type aclRequest struct {
	ClientID   string `json:"clientid"`
	Username   string `json:"username"`
	Topic      string `json:"topic"`
	Action     string `json:"action"`
	QoS        int    `json:"qos"`
	PeerHost   string `json:"peerhost"`
	Protocol   string `json:"protocol"`
	Mountpoint string `json:"mountpoint"`
}

// decisionResponse carries an allow/deny decision back to the broker.
type decisionResponse struct {
	Result string `json:"result"`
}

// createAccountRequest is the provisioning payload from the device registry.
type createAccountRequest struct {
	DeviceUUID   string `json:"device_uuid"`
	MQTTUsername string `json:"mqtt_username"`
}

// createAccountResponse returns the credentials to the provisioning
// caller. The plaintext password appears here exactly once.
type createAccountResponse struct {
	MQTTUsername string `json:"mqtt_username"`
	MQTTPassword string `json:"mqtt_password"`
	ClientID     string `json:"client_id"`
}

// deviceInfoResponse is the device metadata joined from the stored account.
type deviceInfoResponse struct {
	ClientID     string `json:"client_id"`
	MQTTUsername string `json:"mqtt_username"`
	DeviceRef    string `json:"device_ref,omitempty"`
	DeviceName   string `json:"device_name,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// handleAuth answers the broker authentication webhook.
//
// Malformed requests get a 4xx; every well-formed request gets a
// definitive allow/deny with HTTP 200.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	decision := s.auth.Authenticate(r.Context(), req.Username, req.Password, req.ClientID)
	s.metrics.recordAuth(decision.Allow)

	writeDecision(w, decision)
}

// handleACL answers the broker authorization webhook.
func (s *Server) handleACL(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Topic == "" || req.Action == "" {
		writeBadRequest(w, "username, topic and action are required")
		return
	}

	action, err := mqttauth.ParseAction(req.Action)
	if err != nil {
		writeBadRequest(w, "action must be publish or subscribe")
		return
	}

	decision := s.auth.Authorize(r.Context(), req.Username, req.Topic, action, req.QoS)
	s.metrics.recordACL(decision.Allow)

	writeDecision(w, decision)
}

// handleCreateAccount provisions MQTT credentials for a new device.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.MQTTUsername == "" {
		writeBadRequest(w, "mqtt_username is required")
		return
	}

	account, err := s.auth.Provision(r.Context(), req.MQTTUsername, req.DeviceUUID)
	if err != nil {
		switch {
		case errors.Is(err, mqttauth.ErrInvalidRequest):
			writeBadRequest(w, err.Error())
		case errors.Is(err, mqttauth.ErrUsernameExists):
			writeConflict(w, "mqtt username already exists")
		case errors.Is(err, mqttauth.ErrClientIDExhausted):
			writeError(w, http.StatusServiceUnavailable, ErrCodeAllocationExhausted,
				"client id allocation exhausted, retry later")
		default:
			s.logger.Error("provisioning failed", "username", req.MQTTUsername, "error", err)
			writeInternalError(w, "provisioning failed")
		}
		return
	}

	s.metrics.recordProvision()

	writeJSON(w, http.StatusCreated, createAccountResponse{
		MQTTUsername: account.Username,
		MQTTPassword: account.Password,
		ClientID:     account.ClientID,
	})
}

// handleDeviceInfo returns device metadata for a client id.
func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	account, err := s.auth.DeviceInfo(r.Context(), clientID)
	if err != nil {
		switch {
		case errors.Is(err, mqttauth.ErrAccountNotFound):
			writeNotFound(w, "unknown client id")
		case errors.Is(err, mqttauth.ErrInvalidRequest):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("device info lookup failed", "client_id", clientID, "error", err)
			writeInternalError(w, "device info lookup failed")
		}
		return
	}

	resp := deviceInfoResponse{
		ClientID:     account.ClientID,
		MQTTUsername: account.Username,
		DeviceRef:    account.DeviceRef,
		CreatedAt:    account.CreatedAt.UTC().Format(time.RFC3339),
	}

	// Joining the registry name is best effort; the account data is
	// still useful when the registry is down.
	if s.devices != nil && account.DeviceRef != "" {
		name, err := s.devices.DeviceName(r.Context(), account.DeviceRef)
		if err != nil {
			s.logger.Warn("device name lookup failed", "device_ref", account.DeviceRef, "error", err)
		} else {
			resp.DeviceName = name
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeDecision writes the allow/deny body consumed by the broker.
func writeDecision(w http.ResponseWriter, d mqttauth.Decision) {
	result := resultDeny
	if d.Allow {
		result = resultAllow
	}
	writeJSON(w, http.StatusOK, decisionResponse{Result: result})
}
