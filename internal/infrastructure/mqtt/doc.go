// Package mqtt wraps eclipse/paho.mqtt.golang for the ingestion
// service: broker connection lifecycle, publish/subscribe with tracked
// re-subscription on reconnect, Last Will and Testament, and topic
// builders for the sensors/{clientID}/{type} namespace.
package mqtt
