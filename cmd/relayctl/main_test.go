package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  string
		want string
	}{
		{"default", nil, "", defaultConfigPath},
		{"env", nil, "/etc/relayctl/env.yaml", "/etc/relayctl/env.yaml"},
		{"long flag", []string{"--config", "/tmp/a.yaml"}, "", "/tmp/a.yaml"},
		{"short flag beats env", []string{"-c", "/tmp/b.yaml"}, "/etc/relayctl/env.yaml", "/tmp/b.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RELAYCTL_CONFIG", tt.env)
			opts, err := parseOptions(tt.args)
			if err != nil {
				t.Fatalf("parseOptions() error = %v", err)
			}
			if opts.Config != tt.want {
				t.Errorf("Config = %q, want %q", opts.Config, tt.want)
			}
		})
	}
}

func TestParseOptions_UnknownFlag(t *testing.T) {
	if _, err := parseOptions([]string{"--nope"}); err == nil {
		t.Fatal("parseOptions() expected error for unknown flag")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("relay: [unterminated"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{Config: path}); err == nil {
		t.Fatal("run() should fail with unparseable config")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "relay:\n  binary: \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if err := run(context.Background(), options{Config: path}); err == nil {
		t.Fatal("run() should fail when relay.binary is empty")
	}
}

// freePort reserves and releases a loopback port for the API.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestRun_StartupAndShutdown(t *testing.T) {
	const shell = "/bin/sh"
	if _, err := os.Stat(shell); err != nil {
		t.Skipf("%s not available: %v", shell, err)
	}

	dir := t.TempDir()
	relayConfig := filepath.Join(dir, "relay.sh")
	if err := os.WriteFile(relayConfig, []byte("trap 'exit 0' TERM\necho ready\nwhile :; do sleep 0.05; done\n"), 0o644); err != nil {
		t.Fatalf("writing relay script: %v", err)
	}

	port := freePort(t)
	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
relay:
  name: test-relay
  binary: %q
  config_path: %q
  stop_timeout: 1s
  poll_interval: 20ms
  auto_start: true
  watch_config: true
api:
  host: "127.0.0.1"
  port: %d
  timeouts:
    read: 5
    write: 10
    idle: 10
database:
  enabled: true
  path: %q
logging:
  level: warn
  format: text
`, shell, relayConfig, port, filepath.Join(dir, "relayctl.db"))
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, options{Config: configPath})
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/status", port)
	deadline := time.Now().Add(5 * time.Second)
	var status struct {
		Relay struct {
			Name       string `json:"name"`
			Status     string `json:"status"`
			StartCount int    `json:"start_count"`
		} `json:"relay"`
	}
	for {
		resp, err := http.Get(url) //nolint:noctx // test poll
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if err == nil && status.Relay.Status == "running" {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("relay never reported running: last status %+v, err %v", status, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if status.Relay.Name != "test-relay" {
		t.Errorf("relay name = %q, want test-relay", status.Relay.Name)
	}
	if status.Relay.StartCount != 1 {
		t.Errorf("start_count = %d, want 1", status.Relay.StartCount)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil on clean shutdown", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}
