// SensorStack telemetryd - telemetry storage service.
//
// Consumes device events from the event bus, stores readings in
// InfluxDB, and streams live readings over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/influxdb"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
	"github.com/sensorstack/core/internal/telemetry"
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
	log := logging.Default("telemetryd")
	log.Info("starting telemetryd", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, "telemetryd", version)

	influxClient, err := influxdb.Connect(cfg.Telemetry.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	defer func() {
		log.Info("closing InfluxDB connection")
		if closeErr := influxClient.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}()
	log.Info("InfluxDB connected",
		"url", cfg.Telemetry.InfluxDB.URL,
		"org", cfg.Telemetry.InfluxDB.Org,
		"bucket", cfg.Telemetry.InfluxDB.Bucket,
	)

	influxClient.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	if err := kafka.EnsureTopics(cfg.Kafka,
		events.TopicDeviceData, events.TopicDeviceStatus, events.TopicPowerOutage); err != nil {
		return fmt.Errorf("ensuring kafka topics: %w", err)
	}

	info := telemetry.NewInfoClient(cfg.Telemetry.DeviceInfoURL,
		time.Duration(cfg.Telemetry.DeviceInfoCacheTTL)*time.Second)

	hub := telemetry.NewHub(cfg.Telemetry.WebSocket, log)
	go hub.Run(ctx)

	pipeline := telemetry.NewPipeline(cfg.Kafka, influxClient, info, hub, log)
	defer func() {
		if closeErr := pipeline.Close(); closeErr != nil {
			log.Error("error closing pipeline", "error", closeErr)
		}
	}()
	go func() {
		if runErr := pipeline.Run(ctx); runErr != nil {
			log.Error("telemetry pipeline stopped", "error", runErr)
		}
	}()
	log.Info("telemetry pipeline started")

	server, err := telemetry.NewServer(cfg.Telemetry.API, hub, influxClient, version, log)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

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
