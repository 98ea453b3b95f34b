package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// statusGroupID is the consumer group for the registry's status feed.
const statusGroupID = "deviced-status"

// StatusConsumer applies device status events from the event bus to
// the registry.
type StatusConsumer struct {
	reader *kafka.Reader
	repo   Repository
	log    *logging.Logger
}

// NewStatusConsumer wires the consumer to the status topic.
func NewStatusConsumer(cfg config.KafkaConfig, repo Repository, log *logging.Logger) *StatusConsumer {
	return &StatusConsumer{
		reader: kafka.NewReader(cfg, events.TopicDeviceStatus, statusGroupID),
		repo:   repo,
		log:    log,
	}
}

// Run consumes status events until the context is cancelled.
func (c *StatusConsumer) Run(ctx context.Context) error {
	return c.reader.Run(ctx, c.handle, func(err error) {
		c.log.Warn("status event rejected", "error", err)
	})
}

// handle applies one status event.
func (c *StatusConsumer) handle(ctx context.Context, _, value []byte) error {
	var status events.DeviceStatus
	if err := json.Unmarshal(value, &status); err != nil {
		return fmt.Errorf("decoding status event: %w", err)
	}
	if status.ClientID == "" || status.Status == "" {
		return fmt.Errorf("status event missing client_id or status")
	}

	if err := c.repo.UpdateStatus(ctx, status.ClientID, status.Status, status.Timestamp); err != nil {
		return err
	}

	c.log.Debug("device status updated",
		"client_id", status.ClientID,
		"status", status.Status,
	)
	return nil
}

// Close stops the underlying reader.
func (c *StatusConsumer) Close() error {
	return c.reader.Close()
}
