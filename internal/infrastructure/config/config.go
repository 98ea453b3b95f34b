package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the SensorStack services.
// All services load the same file and read only the sections they need.
// Values can be overridden by environment variables (secrets especially).
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MQTTAuth  MQTTAuthConfig  `yaml:"mqtt_auth"`
	Devices   DevicesConfig   `yaml:"devices"`
	Ingestor  IngestorConfig  `yaml:"ingestor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alert     AlertConfig     `yaml:"alert"`
}

// LoggingConfig contains logging settings shared by all services.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// KafkaConfig contains the shared event-bus connection settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// DatabaseConfig contains SQLite database settings for a single service.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP server settings for a single service.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// MQTTAuthConfig contains settings for the MQTT identity and access
// control service (authacld).
type MQTTAuthConfig struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`

	// EnforceClientID additionally requires the connecting client id to
	// equal the account's provisioned client id during authentication.
	// The broker hook supplies the field either way.
	EnforceClientID bool `yaml:"enforce_client_id"`

	// DecisionTimeout is the maximum time in seconds an auth/ACL decision
	// may take before the service answers deny (fail-closed).
	DecisionTimeout int `yaml:"decision_timeout"`

	// PasswordLength is the length of generated plaintext credentials.
	PasswordLength int `yaml:"password_length"`

	// ClientIDAttempts bounds the unique client-id allocation loop.
	ClientIDAttempts int `yaml:"client_id_attempts"`

	// DeviceServiceURL is the base URL of deviced, used to join device
	// metadata into device-info responses. Optional.
	DeviceServiceURL string `yaml:"device_service_url"`
}

// DevicesConfig contains settings for the device registry service (deviced).
type DevicesConfig struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`

	// AuthACLURL is the base URL of authacld for credential provisioning.
	AuthACLURL string `yaml:"auth_acl_url"`

	// JWTSecret protects mutating endpoints when non-empty.
	JWTSecret string `yaml:"jwt_secret"`

	// PageSize is the default page size for device listings.
	PageSize int `yaml:"page_size"`

	// MaxPageSize caps the client-requested page size.
	MaxPageSize int `yaml:"max_page_size"`
}

// IngestorConfig contains settings for the telemetry ingestion service.
type IngestorConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`

	// TopicRoot is the first segment of device topics (sensors/{id}/...).
	TopicRoot string `yaml:"topic_root"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthCredentials `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthCredentials contains MQTT authentication credentials.
type MQTTAuthCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TelemetryConfig contains settings for the telemetry storage service.
type TelemetryConfig struct {
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`

	// DeviceInfoURL is the base URL of authacld for device-info lookups.
	DeviceInfoURL string `yaml:"device_info_url"`

	// DeviceInfoCacheTTL is how long device-info lookups are cached, seconds.
	DeviceInfoCacheTTL int `yaml:"device_info_cache_ttl"`

	WebSocket WebSocketConfig `yaml:"websocket"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// WebSocketConfig contains live telemetry stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// AlertConfig contains settings for the alerting service.
type AlertConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`

	// ThrottleInterval is the minimum gap in seconds between alerts for
	// the same client, preventing mail storms from flapping devices.
	ThrottleInterval int `yaml:"throttle_interval"`
}

// SMTPConfig contains outbound mail settings.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern SENSORSTACK_SECTION_KEY,
// for example SENSORSTACK_INFLUXDB_TOKEN or SENSORSTACK_SMTP_PASSWORD.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
		},
		MQTTAuth: MQTTAuthConfig{
			API: APIConfig{
				Host:     "0.0.0.0",
				Port:     8081,
				Timeouts: APITimeoutConfig{Read: 10, Write: 10, Idle: 60},
			},
			Database: DatabaseConfig{
				Path:        "./data/mqtt_auth.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			DecisionTimeout:  5,
			PasswordLength:   8,
			ClientIDAttempts: 5,
		},
		Devices: DevicesConfig{
			API: APIConfig{
				Host:     "0.0.0.0",
				Port:     8082,
				Timeouts: APITimeoutConfig{Read: 15, Write: 15, Idle: 60},
			},
			Database: DatabaseConfig{
				Path:        "./data/devices.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			AuthACLURL:  "http://localhost:8081",
			PageSize:    20,
			MaxPageSize: 100,
		},
		Ingestor: IngestorConfig{
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "sensorstack-ingestor",
				},
				QoS:       1,
				Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
			},
			TopicRoot: "sensors",
		},
		Telemetry: TelemetryConfig{
			API: APIConfig{
				Host:     "0.0.0.0",
				Port:     8083,
				Timeouts: APITimeoutConfig{Read: 15, Write: 15, Idle: 60},
			},
			InfluxDB: InfluxDBConfig{
				URL:           "http://localhost:8086",
				Org:           "sensorstack",
				Bucket:        "telemetry",
				BatchSize:     100,
				FlushInterval: 10,
			},
			DeviceInfoURL:      "http://localhost:8081",
			DeviceInfoCacheTTL: 300,
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Alert: AlertConfig{
			SMTP: SMTPConfig{
				Host: "localhost",
				Port: 587,
			},
			ThrottleInterval: 300,
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
// Only secrets and deployment-specific endpoints are overridable; the
// rest belongs in the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENSORSTACK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SENSORSTACK_MQTT_USERNAME"); v != "" {
		cfg.Ingestor.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SENSORSTACK_MQTT_PASSWORD"); v != "" {
		cfg.Ingestor.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SENSORSTACK_INFLUXDB_TOKEN"); v != "" {
		cfg.Telemetry.InfluxDB.Token = v
	}
	if v := os.Getenv("SENSORSTACK_JWT_SECRET"); v != "" {
		cfg.Devices.JWTSecret = v
	}
	if v := os.Getenv("SENSORSTACK_SMTP_PASSWORD"); v != "" {
		cfg.Alert.SMTP.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers must not be empty")
	}

	if c.MQTTAuth.Database.Path == "" {
		errs = append(errs, "mqtt_auth.database.path is required")
	}
	if c.MQTTAuth.API.Port <= 0 || c.MQTTAuth.API.Port > 65535 {
		errs = append(errs, "mqtt_auth.api.port must be 1-65535")
	}
	if c.MQTTAuth.PasswordLength < 4 {
		errs = append(errs, "mqtt_auth.password_length must be at least 4")
	}
	if c.MQTTAuth.ClientIDAttempts < 1 {
		errs = append(errs, "mqtt_auth.client_id_attempts must be at least 1")
	}
	if c.MQTTAuth.DecisionTimeout < 1 {
		errs = append(errs, "mqtt_auth.decision_timeout must be at least 1 second")
	}

	if c.Devices.Database.Path == "" {
		errs = append(errs, "devices.database.path is required")
	}
	if c.Devices.PageSize < 1 || c.Devices.PageSize > c.Devices.MaxPageSize {
		errs = append(errs, "devices.page_size must be between 1 and devices.max_page_size")
	}

	if c.Ingestor.MQTT.Broker.Host == "" {
		errs = append(errs, "ingestor.mqtt.broker.host is required")
	}
	if c.Ingestor.TopicRoot == "" {
		errs = append(errs, "ingestor.topic_root is required")
	}

	if c.Telemetry.InfluxDB.URL == "" {
		errs = append(errs, "telemetry.influxdb.url is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
