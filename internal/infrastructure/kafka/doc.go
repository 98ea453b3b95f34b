// Package kafka provides thin producer and consumer wrappers around
// segmentio/kafka-go for the event bus connecting the services. Events
// are JSON-encoded and keyed by device client id so per-device ordering
// is preserved within a topic.
package kafka
