// Package device implements the device registry service (deviced):
// device records, provisioning of MQTT credentials through authacld,
// paged listings, and status updates consumed from the event bus.
package device
