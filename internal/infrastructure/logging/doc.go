// Package logging provides structured logging for the SensorStack
// services, built on log/slog with config-driven level, format, and
// destination.
package logging
