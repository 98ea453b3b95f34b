package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
	"github.com/sensorstack/core/internal/infrastructure/mqtt"
)

// publishTimeout bounds one produce call from a message handler.
// Handlers run on broker callbacks and must not hang.
const publishTimeout = 10 * time.Second

// eventPublisher produces one typed event stream. Satisfied by
// *kafka.Writer; faked in tests.
type eventPublisher interface {
	Publish(ctx context.Context, clientID string, event any) error
	Close() error
}

// Dispatcher routes device messages from the broker onto the event bus.
//
// One subscription covers the whole device namespace; the trailing
// topic segment picks the decoder and the destination topic.
type Dispatcher struct {
	client *mqtt.Client
	topics mqtt.Topics
	log    *logging.Logger

	data   eventPublisher
	status eventPublisher
	power  eventPublisher

	// now is replaceable for tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher producing to the standard event
// bus topics.
func NewDispatcher(cfg config.KafkaConfig, client *mqtt.Client, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topics: client.Topics(),
		log:    log,
		data:   kafka.NewWriter(cfg, events.TopicDeviceData),
		status: kafka.NewWriter(cfg, events.TopicDeviceStatus),
		power:  kafka.NewWriter(cfg, events.TopicPowerOutage),
		now:    time.Now,
	}
}

// Start subscribes to the device namespace. The subscription survives
// broker reconnects.
func (d *Dispatcher) Start() error {
	topic := d.topics.AllDevices()
	if err := d.client.Subscribe(topic, 1, d.dispatch); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	d.log.Info("ingest dispatcher started", "topic", topic)
	return nil
}

// dispatch decodes one broker message and produces the matching event.
//
// Decode failures are returned (and logged by the MQTT wrapper) but
// never propagate further; the subscription keeps running.
func (d *Dispatcher) dispatch(topic string, payload []byte) error {
	clientID, msgType, ok := d.topics.ParseDevice(topic)
	if !ok {
		return fmt.Errorf("ignoring message outside device namespace: %s", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	now := d.now()

	switch msgType {
	case mqtt.TypeTelemetry:
		data, err := decodeTelemetry(clientID, payload, now)
		if err != nil {
			return fmt.Errorf("client %s: %w", clientID, err)
		}
		return d.data.Publish(ctx, clientID, data)

	case mqtt.TypeStatus:
		status, err := decodeStatus(clientID, payload, now)
		if err != nil {
			return fmt.Errorf("client %s: %w", clientID, err)
		}
		return d.status.Publish(ctx, clientID, status)

	case mqtt.TypePowerOutage:
		event, err := decodePowerOutage(clientID, payload, now)
		if err != nil {
			return fmt.Errorf("client %s: %w", clientID, err)
		}
		return d.power.Publish(ctx, clientID, event)

	default:
		// Command topics flow the other way; anything else is noise.
		d.log.Debug("ignoring message type", "topic", topic, "type", msgType)
		return nil
	}
}

// Close flushes and releases the event bus producers.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, p := range []eventPublisher{d.data, d.status, d.power} {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
