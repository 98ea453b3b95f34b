package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxRequestBodySize limits registration payloads (16 KB).
const maxRequestBodySize = 16 << 10

// buildRouter constructs the chi router with middleware and routes.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{uuid}", s.handleGetDevice)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/", s.handleCreateDevice)
				// Payload shape used by existing provisioning tooling.
				r.Post("/create_device", s.handleCreateDeviceCompat)
			})
		})
	})

	return r
}

// loggingMiddleware logs each HTTP request with method, path, status,
// and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware enforces a bearer token with the devices:write scope.
// When no secret is configured the check is skipped.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.jwtSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
			return
		}

		claims, err := ParseToken(tokenString, s.jwtSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if claims.Scope != ScopeDevicesWrite {
			writeError(w, http.StatusForbidden, "forbidden", "missing devices:write scope")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth reports service health including database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check database failure", "error", err)
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]string{
		"status":  status,
		"service": "deviced",
		"version": s.version,
	})
}

// createDeviceResponse returns the device with its one-time credentials.
type createDeviceResponse struct {
	Device      *Device      `json:"device"`
	Credentials *Credentials `json:"credentials"`
}

// handleCreateDevice registers a device and returns its MQTT
// credentials. The plaintext password appears only in this response.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}

	device, creds, err := s.registry.Create(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidDevice):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, ErrNameExists):
			writeError(w, http.StatusConflict, "conflict", "device name already registered")
		case errors.Is(err, ErrProvisioningConflict):
			writeError(w, http.StatusConflict, "conflict", "mqtt username conflict, retry registration")
		default:
			s.logger.Error("device registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "device registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, createDeviceResponse{
		Device:      device,
		Credentials: creds,
	})
}

// createDeviceCompatRequest is the payload of the create_device route.
type createDeviceCompatRequest struct {
	DeviceName   string `json:"device_name"`
	MQTTUsername string `json:"mqtt_username"`
}

// createDeviceCompatResponse is the flat response shape of create_device.
type createDeviceCompatResponse struct {
	DeviceName   string `json:"device_name"`
	MQTTUsername string `json:"mqtt_username"`
	MQTTPassword string `json:"mqtt_password"`
	ClientID     string `json:"client_id"`
}

// handleCreateDeviceCompat registers a device with a caller-chosen MQTT
// username and returns the flat credential shape.
func (s *Server) handleCreateDeviceCompat(w http.ResponseWriter, r *http.Request) {
	var req createDeviceCompatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}

	device, creds, err := s.registry.Create(r.Context(), CreateInput{
		Name:         req.DeviceName,
		MQTTUsername: req.MQTTUsername,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidDevice):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, ErrNameExists):
			writeError(w, http.StatusConflict, "conflict", "device name already registered")
		case errors.Is(err, ErrProvisioningConflict):
			writeError(w, http.StatusConflict, "conflict", "mqtt username already taken")
		default:
			s.logger.Error("device registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "device registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, createDeviceCompatResponse{
		DeviceName:   device.Name,
		MQTTUsername: creds.MQTTUsername,
		MQTTPassword: creds.MQTTPassword,
		ClientID:     creds.ClientID,
	})
}

// handleGetDevice returns a single device by UUID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceUUID := chi.URLParam(r, "uuid")
	if deviceUUID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "device uuid is required")
		return
	}

	device, err := s.registry.Get(r.Context(), deviceUUID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "device not found")
			return
		}
		s.logger.Error("device lookup failed", "device_uuid", deviceUUID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "device lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// handleListDevices returns one page of devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	page, err := s.registry.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("device listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "device listing failed")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// queryInt parses an integer query parameter, falling back on absence
// or garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// apiError is the structured error response body.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{
		Status:  status,
		Code:    code,
		Message: message,
	})
}
