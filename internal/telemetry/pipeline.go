package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// Consumer group ids, one per event stream.
const (
	dataGroupID   = "telemetryd-data"
	statusGroupID = "telemetryd-status"
	powerGroupID  = "telemetryd-power"
)

// PointWriter records time-series points. Satisfied by the InfluxDB
// client; faked in tests. Writes are asynchronous and never block.
type PointWriter interface {
	WriteSensorReading(clientID, deviceName, measurement string, value float64, timestamp time.Time)
	WriteDeviceStatus(clientID, status string, timestamp time.Time)
	WritePowerEvent(clientID, event string, timestamp time.Time)
}

// Broadcaster pushes enriched readings to live subscribers. Satisfied
// by *Hub.
type Broadcaster interface {
	Broadcast(reading Reading)
}

// Pipeline consumes the event bus streams and turns them into stored
// points and live readings.
type Pipeline struct {
	writer PointWriter
	info   InfoSource
	hub    Broadcaster
	log    *logging.Logger

	data   *kafka.Reader
	status *kafka.Reader
	power  *kafka.Reader
}

// NewPipeline wires the three stream consumers. hub may be nil when no
// live stream is wanted.
func NewPipeline(cfg config.KafkaConfig, writer PointWriter, info InfoSource, hub Broadcaster, log *logging.Logger) *Pipeline {
	return &Pipeline{
		writer: writer,
		info:   info,
		hub:    hub,
		log:    log,
		data:   kafka.NewReader(cfg, events.TopicDeviceData, dataGroupID),
		status: kafka.NewReader(cfg, events.TopicDeviceStatus, statusGroupID),
		power:  kafka.NewReader(cfg, events.TopicPowerOutage, powerGroupID),
	}
}

// Run consumes all three streams until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	onError := func(err error) {
		p.log.Warn("telemetry event rejected", "error", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	run := func(r *kafka.Reader, handler kafka.Handler) {
		defer wg.Done()
		if err := r.Run(ctx, handler, onError); err != nil {
			errs <- fmt.Errorf("consuming %s: %w", r.Topic(), err)
		}
	}

	wg.Add(3)
	go run(p.data, p.handleData)
	go run(p.status, p.handleStatus)
	go run(p.power, p.handlePower)
	wg.Wait()
	close(errs)

	return <-errs
}

// handleData stores one batch of readings and feeds the live stream.
//
// Enrichment is best effort: when the metadata lookup fails the point
// is written without a device name.
func (p *Pipeline) handleData(ctx context.Context, _, value []byte) error {
	var data events.DeviceData
	if err := json.Unmarshal(value, &data); err != nil {
		return fmt.Errorf("decoding device data: %w", err)
	}
	if data.ClientID == "" || len(data.Readings) == 0 {
		return fmt.Errorf("device data missing client_id or readings")
	}

	deviceName := ""
	if p.info != nil {
		info, err := p.info.Lookup(ctx, data.ClientID)
		switch {
		case err != nil:
			p.log.Warn("device-info lookup failed",
				"client_id", data.ClientID, "error", err)
		case info != nil:
			deviceName = info.DeviceName
		}
	}

	for measurement, v := range data.Readings {
		p.writer.WriteSensorReading(data.ClientID, deviceName, measurement, v, data.Timestamp)

		if p.hub != nil {
			p.hub.Broadcast(Reading{
				ClientID:    data.ClientID,
				DeviceName:  deviceName,
				Measurement: measurement,
				Value:       v,
				Timestamp:   data.Timestamp,
			})
		}
	}

	return nil
}

// handleStatus stores one status transition.
func (p *Pipeline) handleStatus(_ context.Context, _, value []byte) error {
	var status events.DeviceStatus
	if err := json.Unmarshal(value, &status); err != nil {
		return fmt.Errorf("decoding device status: %w", err)
	}
	if status.ClientID == "" || status.Status == "" {
		return fmt.Errorf("device status missing client_id or status")
	}

	p.writer.WriteDeviceStatus(status.ClientID, status.Status, status.Timestamp)
	return nil
}

// handlePower stores one power event.
func (p *Pipeline) handlePower(_ context.Context, _, value []byte) error {
	var event events.PowerOutageEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decoding power event: %w", err)
	}
	if event.ClientID == "" || event.Event == "" {
		return fmt.Errorf("power event missing client_id or event")
	}

	p.writer.WritePowerEvent(event.ClientID, event.Event, event.Timestamp)
	return nil
}

// Close stops the stream consumers.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, r := range []*kafka.Reader{p.data, p.status, p.power} {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
