// SensorStack alertd - alerting service.
//
// Watches the event bus for critical device status transitions and
// power outages and sends e-mail notifications.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensorstack/core/internal/alert"
	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
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
	log := logging.Default("alertd")
	log.Info("starting alertd", "version", version)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, "alertd", version)

	mailer, err := alert.NewSMTPMailer(cfg.Alert.SMTP)
	if err != nil {
		return fmt.Errorf("configuring mailer: %w", err)
	}
	log.Info("mailer configured",
		"host", cfg.Alert.SMTP.Host,
		"recipients", len(cfg.Alert.SMTP.To),
	)

	if err := kafka.EnsureTopics(cfg.Kafka,
		events.TopicDeviceStatus, events.TopicPowerOutage); err != nil {
		return fmt.Errorf("ensuring kafka topics: %w", err)
	}

	alerter := alert.NewAlerter(cfg.Kafka,
		time.Duration(cfg.Alert.ThrottleInterval)*time.Second, mailer, log)
	defer func() {
		if closeErr := alerter.Close(); closeErr != nil {
			log.Error("error closing alerter", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, consuming events")

	if err := alerter.Run(ctx); err != nil {
		return fmt.Errorf("consuming events: %w", err)
	}

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
