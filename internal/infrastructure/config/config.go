package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the mixer service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	OSC       OSCConfig       `yaml:"osc"`
	Logging   LoggingConfig   `yaml:"logging"`
	Mixer     MixerConfig     `yaml:"mixer"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig controls the parameter change history.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Retention is how many days of changes are kept. 0 keeps everything.
	Retention int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// PublishMeters relays meter snapshots as well as parameter changes.
	PublishMeters bool `yaml:"publish_meters"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// OSCConfig contains the OSC bridge settings.
type OSCConfig struct {
	Enabled bool `yaml:"enabled"`

	// Listen is the UDP address inbound control messages arrive on.
	Listen string `yaml:"listen"`

	// FeedbackHost and FeedbackPort receive parameter feedback.
	FeedbackHost string `yaml:"feedback_host"`
	FeedbackPort int    `yaml:"feedback_port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MixerConfig contains state manager and meter loop settings.
type MixerConfig struct {
	// SettleDelay is the wait between a scene recall and the re-sync (ms).
	SettleDelay int `yaml:"settle_delay_ms"`

	// MeterInterval is the meter broadcast period (ms).
	MeterInterval int `yaml:"meter_interval_ms"`

	// MeterBackoff is the pause after a failed meter iteration (ms).
	MeterBackoff int `yaml:"meter_backoff_ms"`

	// ConnectTimeout bounds each device connect attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// QueueSize is the per-device inbound event queue length.
	QueueSize int `yaml:"queue_size"`
}

// DeviceConfig describes one console to connect at startup.
type DeviceConfig struct {
	// ID overrides the default "manufacturer_model" device id.
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Model       string `yaml:"model"`
	Connection  string `yaml:"connection"`
	MIDIChannel int    `yaml:"midi_channel"`
	AutoConnect bool   `yaml:"auto_connect"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYMIXER_SECTION_KEY
// For example: GRAYMIXER_DATABASE_PATH, GRAYMIXER_API_PORT
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

// Default returns the default configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/graymixer.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graymixer",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		OSC: OSCConfig{
			Listen:       "0.0.0.0:9000",
			FeedbackHost: "127.0.0.1",
			FeedbackPort: 9001,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Mixer: MixerConfig{
			SettleDelay:    100,
			MeterInterval:  50,
			MeterBackoff:   1000,
			ConnectTimeout: 5,
			QueueSize:      256,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYMIXER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYMIXER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYMIXER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYMIXER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYMIXER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYMIXER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYMIXER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYMIXER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYMIXER_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.History.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when history is enabled")
	}
	if c.History.Retention < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.OSC.Enabled && c.OSC.Listen == "" {
		errs = append(errs, "osc.listen is required when osc is enabled")
	}

	if c.Mixer.MeterInterval < 1 {
		errs = append(errs, "mixer.meter_interval_ms must be positive")
	}
	if c.Mixer.SettleDelay < 0 || c.Mixer.MeterBackoff < 0 || c.Mixer.ConnectTimeout < 0 || c.Mixer.QueueSize < 0 {
		errs = append(errs, "mixer durations and queue_size must not be negative")
	}

	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.Model == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].model is required", i))
		}
		if d.Connection == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].connection is required", i))
		}
		if d.MIDIChannel < 0 || d.MIDIChannel > 15 {
			errs = append(errs, fmt.Sprintf("devices[%d].midi_channel must be between 0 and 15", i))
		}
		if d.ID != "" {
			if seen[d.ID] {
				errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
			}
			seen[d.ID] = true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SettleDelayDuration returns the scene recall settle delay.
func (m MixerConfig) SettleDelayDuration() time.Duration {
	return time.Duration(m.SettleDelay) * time.Millisecond
}

// MeterIntervalDuration returns the meter broadcast period.
func (m MixerConfig) MeterIntervalDuration() time.Duration {
	return time.Duration(m.MeterInterval) * time.Millisecond
}

// MeterBackoffDuration returns the pause after a failed meter iteration.
func (m MixerConfig) MeterBackoffDuration() time.Duration {
	return time.Duration(m.MeterBackoff) * time.Millisecond
}

// ConnectTimeoutDuration returns the per-device connect bound.
func (m MixerConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}
