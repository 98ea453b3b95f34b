package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	"github.com/sensorstack/core/internal/infrastructure/config"
)

// Operation timeouts.
const (
	// defaultWriteTimeout bounds a single produce call.
	defaultWriteTimeout = 10 * time.Second

	// defaultDialTimeout bounds topic creation on startup.
	defaultDialTimeout = 10 * time.Second

	// defaultBatchTimeout is how long the writer waits to fill a batch.
	// Kept short so low-volume event streams are not delayed.
	defaultBatchTimeout = 100 * time.Millisecond
)

// Errors for event bus operations.
var (
	// ErrPublishFailed is returned when a produce operation fails.
	ErrPublishFailed = errors.New("kafka: publish failed")

	// ErrClosed is returned when using a closed writer or reader.
	ErrClosed = errors.New("kafka: closed")
)

// Writer publishes JSON-encoded events to a single Kafka topic.
//
// Messages are keyed by the device client id so all events for one
// device land on the same partition and preserve their order.
//
// Thread Safety: all methods are safe for concurrent use.
type Writer struct {
	writer *segkafka.Writer
	topic  string
}

// NewWriter creates a writer for the given topic.
//
// Parameters:
//   - cfg: Shared event bus configuration (broker addresses)
//   - topic: The topic to produce to
//
// Returns:
//   - *Writer: Ready to publish (connections are established lazily)
func NewWriter(cfg config.KafkaConfig, topic string) *Writer {
	return &Writer{
		writer: &segkafka.Writer{
			Addr:         segkafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &segkafka.Hash{},
			BatchTimeout: defaultBatchTimeout,
			RequiredAcks: segkafka.RequireOne,
		},
		topic: topic,
	}
}

// Publish JSON-encodes the event and produces it keyed by clientID.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - clientID: Partition key (device client id)
//   - event: Value to JSON-encode as the message body
//
// Returns:
//   - error: If encoding or the produce fails
func (w *Writer) Publish(ctx context.Context, clientID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encoding event: %w", ErrPublishFailed, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	err = w.writer.WriteMessages(writeCtx, segkafka.Message{
		Key:   []byte(clientID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, w.topic, err)
	}

	return nil
}

// Topic returns the topic this writer produces to.
func (w *Writer) Topic() string {
	return w.topic
}

// Close flushes pending messages and releases connections.
func (w *Writer) Close() error {
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("closing kafka writer for %s: %w", w.topic, err)
	}
	return nil
}

// Handler processes a single consumed message.
//
// Returning an error logs the failure but does not stop consumption or
// redeliver the message; the event stream keeps moving.
type Handler func(ctx context.Context, key, value []byte) error

// Reader consumes JSON-encoded events from a single Kafka topic as
// part of a consumer group.
type Reader struct {
	reader *segkafka.Reader
	topic  string
}

// NewReader creates a consumer-group reader for the given topic.
//
// Parameters:
//   - cfg: Shared event bus configuration (broker addresses)
//   - topic: The topic to consume
//   - groupID: Consumer group id (one per consuming service)
func NewReader(cfg config.KafkaConfig, topic, groupID string) *Reader {
	return &Reader{
		reader: segkafka.NewReader(segkafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: segkafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    1 << 20, // 1MB
		}),
		topic: topic,
	}
}

// Run consumes messages until the context is cancelled, invoking the
// handler for each. Handler errors are reported through onError (may
// be nil) and do not stop the loop.
//
// Returns:
//   - error: nil on context cancellation, otherwise the fetch error
func (r *Reader) Run(ctx context.Context, handler Handler, onError func(err error)) error {
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("reading from topic %s: %w", r.topic, err)
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil && onError != nil {
			onError(err)
		}
	}
}

// Topic returns the topic this reader consumes.
func (r *Reader) Topic() string {
	return r.topic
}

// Close stops consumption and leaves the consumer group.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader for %s: %w", r.topic, err)
	}
	return nil
}

// EnsureTopics creates the given topics if they do not already exist.
// Called once at service startup so local single-broker deployments
// work without manual topic administration.
//
// Parameters:
//   - cfg: Shared event bus configuration
//   - topics: Topic names to create (1 partition, replication 1)
//
// Returns:
//   - error: If the broker cannot be reached or creation fails
func EnsureTopics(cfg config.KafkaConfig, topics ...string) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	dialer := &segkafka.Dialer{Timeout: defaultDialTimeout}

	conn, err := dialer.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dialling kafka broker: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Best effort cleanup

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolving kafka controller: %w", err)
	}

	controllerConn, err := dialer.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)),
	)
	if err != nil {
		return fmt.Errorf("dialling kafka controller: %w", err)
	}
	defer controllerConn.Close() //nolint:errcheck // Best effort cleanup

	configs := make([]segkafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, segkafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("creating kafka topics: %w", err)
	}

	return nil
}
