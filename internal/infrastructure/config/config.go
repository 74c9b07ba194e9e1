package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for relayctl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	API       APIConfig       `yaml:"api"`
	UI        UIConfig        `yaml:"ui"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RelayConfig describes the supervised media-relay process.
type RelayConfig struct {
	// Name is a human-readable identifier used in logs, topics and metrics.
	Name string `yaml:"name"`

	// Binary is the path to the relay executable.
	Binary string `yaml:"binary"`

	// ConfigPath is the relay configuration document. It is passed as the
	// first argument to the binary and served/replaced by the control API.
	ConfigPath string `yaml:"config_path"`

	// WorkDir is the working directory for the relay process.
	// If empty, inherits from relayctl.
	WorkDir string `yaml:"work_dir"`

	// Args are extra arguments appended after the config path.
	Args []string `yaml:"args"`

	// Env are additional environment variables (key=value format).
	Env []string `yaml:"env"`

	// StopTimeout is how long to wait after SIGTERM before SIGKILL.
	// Default: 5s
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// PollInterval is how often liveness is checked while stopping.
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// AutoStart launches the relay when relayctl starts.
	// Default: true
	AutoStart bool `yaml:"auto_start"`

	// Watchdog clears the process handle as soon as the relay exits on its own,
	// instead of noticing on the next lifecycle call.
	Watchdog bool `yaml:"watchdog"`

	// WatchConfig restarts the relay when the config file is edited outside relayctl.
	WatchConfig bool `yaml:"watch_config"`

	// WatchDebounce coalesces bursts of file events. Default: 500ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// TailLines is how many recent output lines are kept for /api/logs.
	// Default: 500
	TailLines int `yaml:"tail_lines"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
//
// Write must exceed relay.stop_timeout with some margin: POST /api/config and
// /api/restart block for a full stop+start cycle.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// UIConfig controls the static web UI.
type UIConfig struct {
	// Dir serves the UI from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite database settings for the audit trail.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file keeps the defaults
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RELAYCTL_SECTION_KEY
// For example: RELAYCTL_RELAY_BINARY, RELAYCTL_API_PORT
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Run on defaults; the relay config path alone is enough to operate.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Name:          "mediamtx",
			Binary:        "./mediamtx",
			ConfigPath:    "./mediamtx.yml",
			StopTimeout:   5 * time.Second,
			PollInterval:  100 * time.Millisecond,
			AutoStart:     true,
			WatchDebounce: 500 * time.Millisecond,
			TailLines:     500,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8908,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Path:        "./data/relayctl.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "relayctl",
			},
			QoS:         1,
			TopicPrefix: "relayctl",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// Relay
	if v := os.Getenv("RELAYCTL_RELAY_BINARY"); v != "" {
		cfg.Relay.Binary = v
	}
	if v := os.Getenv("RELAYCTL_RELAY_CONFIG_PATH"); v != "" {
		cfg.Relay.ConfigPath = v
	}
	if v := os.Getenv("RELAYCTL_RELAY_WORK_DIR"); v != "" {
		cfg.Relay.WorkDir = v
	}

	// API
	if v := os.Getenv("RELAYCTL_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RELAYCTL_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing RELAYCTL_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Database
	if v := os.Getenv("RELAYCTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RELAYCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RELAYCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RELAYCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("RELAYCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Relay.Name == "" {
		errs = append(errs, "relay.name is required")
	}
	if c.Relay.Binary == "" {
		errs = append(errs, "relay.binary is required")
	}
	if c.Relay.ConfigPath == "" {
		errs = append(errs, "relay.config_path is required")
	}
	if c.Relay.StopTimeout <= 0 {
		errs = append(errs, "relay.stop_timeout must be positive")
	}
	if c.Relay.PollInterval <= 0 {
		errs = append(errs, "relay.poll_interval must be positive")
	} else if c.Relay.PollInterval > c.Relay.StopTimeout {
		errs = append(errs, "relay.poll_interval must not exceed relay.stop_timeout")
	}
	if c.Relay.TailLines < 0 {
		errs = append(errs, "relay.tail_lines must not be negative")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Timeouts.Write > 0 && time.Duration(c.API.Timeouts.Write)*time.Second <= 2*c.Relay.StopTimeout {
		errs = append(errs, "api.timeouts.write must exceed twice relay.stop_timeout")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
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
