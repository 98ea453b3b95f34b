// Package ingest bridges the MQTT broker to the Kafka event bus.
//
// It subscribes to the device topic namespace (sensors/+/+), decodes
// the per-type JSON payloads, and republishes them as typed events on
// the corresponding Kafka topics. The client id comes from the topic,
// never from the payload, so devices cannot impersonate each other
// past the broker's ACL.
//
// Malformed payloads and unknown message types are logged and dropped;
// the subscription itself never stops.
package ingest
