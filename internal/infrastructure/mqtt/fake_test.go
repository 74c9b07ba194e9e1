package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/relayctl/internal/infrastructure/config"
)

// fakeToken completes immediately with err.
type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeBroker stands in for a paho client. Methods relayctl never calls
// fall through to the nil embedded interface.
type fakeBroker struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	publishErr   error
	subscribeErr error
	published    []published
	subscribed   map[string]pahomqtt.MessageHandler
	subscribes   int
	disconnected bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, subscribed: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return fakeToken{err: f.publishErr}
	}
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	default:
		body = fmt.Sprint(p)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: body})
	return fakeToken{}
}

func (f *fakeBroker) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subscribeErr != nil {
		return fakeToken{err: f.subscribeErr}
	}
	f.subscribed[topic] = callback
	return fakeToken{}
}

func (f *fakeBroker) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.subscribed, t)
	}
	return fakeToken{}
}

// deliver invokes the handler registered for filter as if a message
// arrived on topic.
func (f *fakeBroker) deliver(filter, topic string, payload []byte) error {
	f.mu.Lock()
	handler, ok := f.subscribed[filter]
	f.mu.Unlock()
	if !ok {
		return errors.New("no subscription for " + filter)
	}
	handler(f, fakeMessage{topic: topic, payload: payload})
	return nil
}

func (f *fakeBroker) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

func (f *fakeBroker) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:      config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "relayctl-test"},
		QoS:         1,
		TopicPrefix: "relayctl",
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	}
}

// connectedClient returns a Client wired to a fake broker, as Connect
// would leave it.
func connectedClient() (*Client, *fakeBroker) {
	broker := newFakeBroker()
	c := newClient(testConfig(), Topics{Prefix: "relayctl", Relay: "mediamtx"})
	c.client = broker
	c.setConnected(true)
	return c, broker
}

type logEntry struct {
	level string
	msg   string
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
	l.mu.Unlock()
}

func (l *captureLogger) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

// fakeController records lifecycle calls.
type fakeController struct {
	mu     sync.Mutex
	calls  []string
	result bool
}

func (f *fakeController) record(action string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	return f.result
}

func (f *fakeController) Start() bool   { return f.record(ActionStart) }
func (f *fakeController) Stop() bool    { return f.record(ActionStop) }
func (f *fakeController) Restart() bool { return f.record(ActionRestart) }
