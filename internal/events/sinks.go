package events

import (
	"context"

	"github.com/nerrad567/relayctl/internal/audit"
	"github.com/nerrad567/relayctl/internal/infrastructure/influxdb"
	"github.com/nerrad567/relayctl/internal/metrics"
	"github.com/nerrad567/relayctl/internal/process"
)

// ChannelLifecycle is the WebSocket channel carrying lifecycle events.
const ChannelLifecycle = "relay.lifecycle"

// runState maps an event to the relay's run state. ok is false for
// events that leave it unchanged.
func runState(t process.EventType) (running, ok bool) {
	switch t {
	case process.EventStarted:
		return true, true
	case process.EventStopped, process.EventKilled, process.EventExited, process.EventSpawnFailed:
		return false, true
	default:
		return false, false
	}
}

// MetricsSink counts events and tracks the running gauge.
func MetricsSink() Sink {
	return SinkFunc(func(_ context.Context, ev process.Event) error {
		metrics.RecordLifecycleEvent(ev.Name, string(ev.Type))
		if running, ok := runState(ev.Type); ok {
			metrics.SetRunning(ev.Name, running)
		}
		return nil
	})
}

// AuditWriter is the audit store surface used by AuditSink.
type AuditWriter interface {
	Create(ctx context.Context, log *audit.AuditLog) error
}

// AuditSink records every transition in the audit log.
func AuditSink(repo AuditWriter) Sink {
	return SinkFunc(func(ctx context.Context, ev process.Event) error {
		details := map[string]any{"event": string(ev.Type)}
		if ev.PID != 0 {
			details["pid"] = ev.PID
		}
		if ev.Forced {
			details["forced"] = true
		}
		if ev.Err != "" {
			details["error"] = ev.Err
		}

		return repo.Create(ctx, &audit.AuditLog{
			Action:     audit.ActionRelayLifecycle,
			EntityType: "relay",
			EntityID:   ev.Name,
			Source:     audit.SourceSystem,
			Success:    ev.Type != process.EventSpawnFailed && ev.Type != process.EventStopFailed,
			Details:    details,
			CreatedAt:  ev.Time,
		})
	})
}

// Publisher is the MQTT surface used by MQTTSink.
type Publisher interface {
	PublishEvent(v any) error
	PublishStatus(running bool) error
}

// MQTTSink publishes the event, then the retained run state when it changed.
func MQTTSink(pub Publisher) Sink {
	return SinkFunc(func(_ context.Context, ev process.Event) error {
		if err := pub.PublishEvent(ev); err != nil {
			return err
		}
		if running, ok := runState(ev.Type); ok {
			return pub.PublishStatus(running)
		}
		return nil
	})
}

// LifecycleWriter is the InfluxDB surface used by InfluxSink.
type LifecycleWriter interface {
	WriteLifecycleEvent(p influxdb.LifecyclePoint)
}

// InfluxSink writes one relay_lifecycle point per event.
func InfluxSink(w LifecycleWriter) Sink {
	return SinkFunc(func(_ context.Context, ev process.Event) error {
		w.WriteLifecycleEvent(influxdb.LifecyclePoint{
			Relay:  ev.Name,
			Event:  string(ev.Type),
			PID:    ev.PID,
			Forced: ev.Forced,
			Error:  ev.Err,
			Time:   ev.Time,
		})
		return nil
	})
}

// Broadcaster is the WebSocket hub surface used by BroadcastSink.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// BroadcastSink pushes events to connected WebSocket clients.
func BroadcastSink(b Broadcaster) Sink {
	return SinkFunc(func(_ context.Context, ev process.Event) error {
		b.Broadcast(ChannelLifecycle, ev)
		return nil
	})
}
