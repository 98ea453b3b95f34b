// Package mqttauth implements the MQTT identity and access control
// core: authentication and authorization decisions for broker webhook
// requests, and atomic provisioning of device accounts with unique
// client ids and default permission sets.
//
// Decisions are always definitive allow/deny. Lookup failures and
// timeouts resolve to deny (fail-closed) because the broker blocks the
// client connect or publish on the answer and has no error channel.
package mqttauth
