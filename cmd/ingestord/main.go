// SensorStack ingestord - telemetry ingestion service.
//
// Bridges device messages from the MQTT broker onto the Kafka event
// bus for the storage and alerting services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
	"github.com/sensorstack/core/internal/infrastructure/mqtt"
	"github.com/sensorstack/core/internal/ingest"
)

// Version information - set at build time via ldflags
var version = "dev"

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default("ingestord")
	log.Info("starting ingestord", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, "ingestord", version)

	// Create the event topics before the first produce.
	if err := kafka.EnsureTopics(cfg.Kafka,
		events.TopicDeviceData, events.TopicDeviceStatus, events.TopicPowerOutage); err != nil {
		return fmt.Errorf("ensuring kafka topics: %w", err)
	}
	log.Info("kafka topics ensured", "brokers", cfg.Kafka.Brokers)

	mqttClient, err := mqtt.Connect(cfg.Ingestor.MQTT, cfg.Ingestor.TopicRoot)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Ingestor.MQTT.Broker.Host, cfg.Ingestor.MQTT.Broker.Port),
		"client_id", cfg.Ingestor.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	dispatcher := ingest.NewDispatcher(cfg.Kafka, mqttClient, log)
	defer func() {
		if closeErr := dispatcher.Close(); closeErr != nil {
			log.Error("error closing dispatcher", "error", closeErr)
		}
	}()
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SENSORSTACK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SENSORSTACK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
