package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestClose_PublishesOfflinePresence(t *testing.T) {
	c, broker := connectedClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	msgs := broker.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "relayctl/mediamtx/controller" || !msgs[0].retained {
		t.Errorf("presence published to %q retained=%v", msgs[0].topic, msgs[0].retained)
	}
	if !strings.Contains(msgs[0].payload, `"offline"`) || !strings.Contains(msgs[0].payload, "graceful_shutdown") {
		t.Errorf("presence payload = %s", msgs[0].payload)
	}
	if !broker.disconnected {
		t.Error("Close() did not disconnect")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestHealthCheck(t *testing.T) {
	c, broker := connectedClient()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	broker.setConnected(false)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestHandleConnect_RestoresSubscriptionsAndAnnounces(t *testing.T) {
	c, broker := connectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("relayctl/mediamtx/command/+", 1, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	called := false
	c.SetOnConnect(func() { called = true })

	c.handleConnect()

	if broker.subscribes != 2 {
		t.Errorf("subscribe calls = %d, want 2 (initial + restore)", broker.subscribes)
	}
	msgs := broker.messages()
	if len(msgs) != 1 || msgs[0].topic != "relayctl/mediamtx/controller" {
		t.Fatalf("published = %+v, want one presence message", msgs)
	}
	var presence map[string]string
	if err := json.Unmarshal([]byte(msgs[0].payload), &presence); err != nil {
		t.Fatalf("presence payload not JSON: %v", err)
	}
	if presence["status"] != "online" || presence["client_id"] != "relayctl-test" {
		t.Errorf("presence = %v", presence)
	}
	if !called {
		t.Error("onConnect callback not called")
	}
}

func TestHandleDisconnect(t *testing.T) {
	c, _ := connectedClient()
	logger := &captureLogger{}
	c.SetLogger(logger)

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	lost := errors.New("connection reset")
	c.handleDisconnect(lost)

	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if !errors.Is(got, lost) {
		t.Errorf("onDisconnect error = %v, want %v", got, lost)
	}
	if entries := logger.snapshot(); len(entries) != 1 || entries[0].level != "warn" {
		t.Errorf("log entries = %+v, want one warning", entries)
	}
}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	c, broker := connectedClient()
	logger := &captureLogger{}
	c.SetLogger(logger)

	err := c.Subscribe("relayctl/test", 1, func(string, []byte) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := broker.deliver("relayctl/test", "relayctl/test", nil); err != nil {
		t.Fatal(err)
	}

	entries := logger.snapshot()
	if len(entries) != 1 || entries[0].level != "error" {
		t.Errorf("log entries = %+v, want one panic error", entries)
	}
}

func TestWrapHandler_LogsHandlerError(t *testing.T) {
	c, broker := connectedClient()
	logger := &captureLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("relayctl/test", 1, func(string, []byte) error {
		return errors.New("bad payload")
	})
	_ = broker.deliver("relayctl/test", "relayctl/test", []byte("x"))

	entries := logger.snapshot()
	if len(entries) != 1 || entries[0].level != "warn" {
		t.Errorf("log entries = %+v, want one warning", entries)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "relayctl/", Relay: "mediamtx"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.Status(), "relayctl/mediamtx/status"},
		{"event", topics.Event(), "relayctl/mediamtx/event"},
		{"controller", topics.Controller(), "relayctl/mediamtx/controller"},
		{"command", topics.Command("restart"), "relayctl/mediamtx/command/restart"},
		{"all commands", topics.AllCommands(), "relayctl/mediamtx/command/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestCommandAction(t *testing.T) {
	topics := Topics{Prefix: "relayctl", Relay: "mediamtx"}

	tests := []struct {
		topic string
		want  string
	}{
		{"relayctl/mediamtx/command/start", "start"},
		{"relayctl/mediamtx/command/restart", "restart"},
		{"relayctl/mediamtx/command/", ""},
		{"relayctl/mediamtx/command/start/extra", ""},
		{"relayctl/other/command/start", ""},
		{"relayctl/mediamtx/status", ""},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := topics.CommandAction(tt.topic); got != tt.want {
				t.Errorf("CommandAction(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "relay"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	configureLWT(opts, Topics{Prefix: "relayctl", Relay: "mediamtx"}, cfg.Broker.ClientID)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "relayctl-test" || opts.Username != "relay" {
		t.Errorf("ClientID = %q Username = %q", opts.ClientID, opts.Username)
	}
	if !opts.WillEnabled || opts.WillTopic != "relayctl/mediamtx/controller" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
	if opts.Order {
		t.Error("Order = true, want handlers on their own goroutines")
	}

	cfg.Broker.TLS = true
	if tlsOpts := buildClientOptions(cfg); tlsOpts.Servers[0].Scheme != "ssl" || tlsOpts.TLSConfig == nil {
		t.Errorf("TLS options not applied: %v", tlsOpts.Servers)
	}
}
