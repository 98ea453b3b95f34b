// Package influxdb wraps the InfluxDB v2 client for the telemetry
// storage service: token-authenticated connection, batched non-blocking
// writes for sensor readings, status transitions and power events, and
// health checks.
package influxdb
