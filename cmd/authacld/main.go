// SensorStack authacld - MQTT Identity & Access Control service.
//
// Answers the broker's HTTP authentication and authorization hooks,
// provisions MQTT accounts for new devices, and serves device-info
// lookups for telemetry enrichment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensorstack/core/internal/api"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/database"
	"github.com/sensorstack/core/internal/infrastructure/logging"
	"github.com/sensorstack/core/internal/mqttauth"
	mqttauthmigrations "github.com/sensorstack/core/migrations/mqttauth"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
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
	log := logging.Default("authacld")
	log.Info("starting authacld", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, "authacld", version)

	db, err := database.Open(database.Config{
		Path:        cfg.MQTTAuth.Database.Path,
		WALMode:     cfg.MQTTAuth.Database.WALMode,
		BusyTimeout: cfg.MQTTAuth.Database.BusyTimeout,
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
	log.Info("database connected", "path", cfg.MQTTAuth.Database.Path)

	if err := db.Migrate(ctx, mqttauthmigrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	repo := mqttauth.NewAccountRepository(db.DB)
	auth := mqttauth.NewService(repo, mqttauth.Options{
		EnforceClientID:  cfg.MQTTAuth.EnforceClientID,
		DecisionTimeout:  time.Duration(cfg.MQTTAuth.DecisionTimeout) * time.Second,
		PasswordLength:   cfg.MQTTAuth.PasswordLength,
		ClientIDAttempts: cfg.MQTTAuth.ClientIDAttempts,
	}, log)

	var devices api.DeviceLookup
	if cfg.MQTTAuth.DeviceServiceURL != "" {
		devices = api.NewRegistryClient(cfg.MQTTAuth.DeviceServiceURL)
		log.Info("device registry lookups enabled", "url", cfg.MQTTAuth.DeviceServiceURL)
	}

	server, err := api.New(api.Deps{
		Config:  cfg.MQTTAuth.API,
		Logger:  log,
		Auth:    auth,
		DB:      db,
		Devices: devices,
		Version: version,
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
