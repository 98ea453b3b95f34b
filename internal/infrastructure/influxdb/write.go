package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a single sensor measurement to InfluxDB.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Tags carry the device identity so queries can group by device, the
// reading itself goes into fields.
//
// Parameters:
//   - clientID: MQTT client id of the device
//   - deviceName: Human-readable device name (empty if unknown)
//   - measurement: The reading name (e.g., "temperature", "humidity")
//   - value: The numeric value to record
//   - timestamp: When the reading was taken
func (c *Client) WriteSensorReading(clientID, deviceName, measurement string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"client_id":   clientID,
		"measurement": measurement,
	}
	if deviceName != "" {
		tags["device_name"] = deviceName
	}

	point := write.NewPoint(
		"sensor_readings",
		tags,
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceStatus records a device status transition.
//
// Status strings are stored as a field so queries can reconstruct the
// status timeline per device.
func (c *Client) WriteDeviceStatus(clientID, status string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"client_id": clientID,
		},
		map[string]interface{}{
			"status": status,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePowerEvent records a mains power outage or restoration event.
func (c *Client) WritePowerEvent(clientID, event string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"power_events",
		map[string]string{
			"client_id": clientID,
		},
		map[string]interface{}{
			"event": event,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
