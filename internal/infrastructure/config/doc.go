// Package config loads and validates the shared YAML configuration for
// all SensorStack services.
//
// Every binary loads the same file; each reads only its own section plus
// the shared logging and kafka sections. Secrets (broker credentials,
// InfluxDB token, JWT secret, SMTP password) can be supplied via
// SENSORSTACK_* environment variables instead of the file.
package config
