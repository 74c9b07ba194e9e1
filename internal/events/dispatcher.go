package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/relayctl/internal/infrastructure/logging"
	"github.com/nerrad567/relayctl/internal/metrics"
	"github.com/nerrad567/relayctl/internal/process"
)

// DefaultSinkTimeout bounds how long one sink may spend on one event.
const DefaultSinkTimeout = 5 * time.Second

// Sink consumes lifecycle events.
type Sink interface {
	HandleEvent(ctx context.Context, ev process.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev process.Event) error

// HandleEvent calls f.
func (f SinkFunc) HandleEvent(ctx context.Context, ev process.Event) error {
	return f(ctx, ev)
}

type namedSink struct {
	name string
	sink Sink
}

// Dispatcher fans supervisor events out to sinks in registration order.
//
// Dispatch is the supervisor's OnEvent callback, so it runs on the
// goroutine that made the transition and delivery order matches
// transition order. A failing or panicking sink is logged and counted;
// later sinks still see the event.
type Dispatcher struct {
	sinks   []namedSink
	timeout time.Duration
	logger  *logging.Logger
}

// NewDispatcher creates a dispatcher with no sinks.
func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		timeout: DefaultSinkTimeout,
		logger:  logger.Component("events"),
	}
}

// Register appends a sink. It must not be called concurrently with Dispatch.
func (d *Dispatcher) Register(name string, sink Sink) {
	d.sinks = append(d.sinks, namedSink{name: name, sink: sink})
}

// Sinks returns the registered sink names in delivery order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.name
	}
	return names
}

// Dispatch delivers ev to every sink.
func (d *Dispatcher) Dispatch(ev process.Event) {
	d.logger.Debug("relay lifecycle event", "event", ev.Type, "relay", ev.Name, "pid", ev.PID)

	for _, s := range d.sinks {
		if err := d.deliver(s, ev); err != nil {
			metrics.RecordSinkError(s.name)
			d.logger.Warn("event sink failed",
				"sink", s.name,
				"event", ev.Type,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) deliver(s namedSink, ev process.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return s.sink.HandleEvent(ctx, ev)
}
