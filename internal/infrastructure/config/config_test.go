package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
relay:
  name: "edge-relay"
  binary: "/opt/mediamtx/mediamtx"
  config_path: "/etc/mediamtx/mediamtx.yml"
  work_dir: "/opt/mediamtx"
  stop_timeout: 3s
  poll_interval: 50ms
  watchdog: true
api:
  host: "127.0.0.1"
  port: 9000
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Relay.Name != "edge-relay" {
		t.Errorf("Relay.Name = %q, want %q", cfg.Relay.Name, "edge-relay")
	}
	if cfg.Relay.Binary != "/opt/mediamtx/mediamtx" {
		t.Errorf("Relay.Binary = %q, want %q", cfg.Relay.Binary, "/opt/mediamtx/mediamtx")
	}
	if cfg.Relay.StopTimeout != 3*time.Second {
		t.Errorf("Relay.StopTimeout = %v, want 3s", cfg.Relay.StopTimeout)
	}
	if cfg.Relay.PollInterval != 50*time.Millisecond {
		t.Errorf("Relay.PollInterval = %v, want 50ms", cfg.Relay.PollInterval)
	}
	if !cfg.Relay.Watchdog {
		t.Error("Relay.Watchdog = false, want true")
	}
	// Unset keys keep their defaults.
	if !cfg.Relay.AutoStart {
		t.Error("Relay.AutoStart = false, want default true")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.MQTT.TopicPrefix != "relayctl" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "relayctl")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want defaults", err)
	}
	if cfg.API.Port != 8908 {
		t.Errorf("API.Port = %d, want 8908", cfg.API.Port)
	}
	if cfg.Relay.StopTimeout != 5*time.Second {
		t.Errorf("Relay.StopTimeout = %v, want 5s", cfg.Relay.StopTimeout)
	}
}

func TestLoad_UnreadablePath(t *testing.T) {
	// A directory cannot be read as a file.
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load() expected error for directory path, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
relay:
  binary: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty relay.binary, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing binary",
			mutate:  func(c *Config) { c.Relay.Binary = "" },
			wantErr: true,
		},
		{
			name:    "missing config path",
			mutate:  func(c *Config) { c.Relay.ConfigPath = "" },
			wantErr: true,
		},
		{
			name:    "zero stop timeout",
			mutate:  func(c *Config) { c.Relay.StopTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "poll interval longer than stop timeout",
			mutate:  func(c *Config) { c.Relay.PollInterval = 10 * time.Second },
			wantErr: true,
		},
		{
			name:    "write timeout shorter than a stop cycle",
			mutate:  func(c *Config) { c.API.Timeouts.Write = 5 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "invalid QoS when MQTT enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS ignored when MQTT disabled",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: false,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "tls without key",
			mutate: func(c *Config) {
				c.API.TLS.Enabled = true
				c.API.TLS.CertFile = "cert.pem"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("RELAYCTL_RELAY_BINARY", "/usr/local/bin/mediamtx")
	t.Setenv("RELAYCTL_RELAY_CONFIG_PATH", "/srv/relay.yml")
	t.Setenv("RELAYCTL_API_HOST", "192.168.1.1")
	t.Setenv("RELAYCTL_API_PORT", "9100")
	t.Setenv("RELAYCTL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("RELAYCTL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("RELAYCTL_MQTT_USERNAME", "testuser")
	t.Setenv("RELAYCTL_MQTT_PASSWORD", "testpass")
	t.Setenv("RELAYCTL_INFLUXDB_TOKEN", "secret-token")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Relay.Binary != "/usr/local/bin/mediamtx" {
		t.Errorf("Relay.Binary = %q, want %q", cfg.Relay.Binary, "/usr/local/bin/mediamtx")
	}
	if cfg.Relay.ConfigPath != "/srv/relay.yml" {
		t.Errorf("Relay.ConfigPath = %q, want %q", cfg.Relay.ConfigPath, "/srv/relay.yml")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100", cfg.API.Port)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadPort(t *testing.T) {
	cfg := Default()
	t.Setenv("RELAYCTL_API_PORT", "not-a-port")

	if err := applyEnvOverrides(cfg); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port, got nil")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Relay.PollInterval != 100*time.Millisecond {
		t.Errorf("Default Relay.PollInterval = %v, want 100ms", cfg.Relay.PollInterval)
	}
	if cfg.Relay.Watchdog {
		t.Error("Default Relay.Watchdog = true, want false")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8908 {
		t.Errorf("Default API.Port = %d, want 8908", cfg.API.Port)
	}
}
