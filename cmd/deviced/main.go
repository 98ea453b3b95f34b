// SensorStack deviced - device registry service.
//
// Registers devices, obtains their MQTT credentials from authacld, and
// tracks device status from the event bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensorstack/core/internal/device"
	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/database"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
	devicesmigrations "github.com/sensorstack/core/migrations/devices"
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
	log := logging.Default("deviced")
	log.Info("starting deviced", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, "deviced", version)

	db, err := database.Open(database.Config{
		Path:        cfg.Devices.Database.Path,
		WALMode:     cfg.Devices.Database.WALMode,
		BusyTimeout: cfg.Devices.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Devices.Database.Path)

	if err := db.Migrate(ctx, devicesmigrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	repo := device.NewRepository(db.DB)
	issuer := device.NewAuthACLClient(cfg.Devices.AuthACLURL)
	registry := device.NewRegistry(repo, issuer,
		cfg.Devices.PageSize, cfg.Devices.MaxPageSize, log)

	// The status topic must exist before the consumer group joins it.
	if err := kafka.EnsureTopics(cfg.Kafka, events.TopicDeviceStatus); err != nil {
		return fmt.Errorf("ensuring kafka topics: %w", err)
	}

	consumer := device.NewStatusConsumer(cfg.Kafka, repo, log)
	defer func() {
		if closeErr := consumer.Close(); closeErr != nil {
			log.Error("error closing status consumer", "error", closeErr)
		}
	}()
	go func() {
		if runErr := consumer.Run(ctx); runErr != nil {
			log.Error("status consumer stopped", "error", runErr)
		}
	}()
	log.Info("status consumer started", "topic", events.TopicDeviceStatus)

	server, err := device.NewServer(device.ServerDeps{
		Config:    cfg.Devices.API,
		Logger:    log,
		Registry:  registry,
		DB:        db,
		JWTSecret: cfg.Devices.JWTSecret,
		Version:   version,
	})
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

	if cfg.Devices.JWTSecret == "" {
		log.Warn("no JWT secret configured, mutating endpoints are open")
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
