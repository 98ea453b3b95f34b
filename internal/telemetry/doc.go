// Package telemetry stores device readings and streams them live.
//
// It consumes the event bus topics produced by the ingestor, enriches
// readings with device metadata from the credential authority, writes
// time-series points to InfluxDB, and broadcasts enriched readings to
// WebSocket subscribers.
//
// Malformed events are dropped with a log line; the consumers keep
// moving. Enrichment is best effort: a failed lookup never blocks a
// write.
package telemetry
