// Package metrics holds relayctl's Prometheus collectors.
//
// Collectors are registered on the default registry at init through
// promauto and served by the API at /metrics.
package metrics

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// relayOutputLines counts forwarded child output by classified level
	relayOutputLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_relay_output_lines_total",
			Help: "Lines of relay output forwarded, by relay and level",
		},
		[]string{"relay", "level"},
	)

	// relayLifecycleEvents counts supervisor transitions
	relayLifecycleEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_relay_lifecycle_events_total",
			Help: "Relay lifecycle transitions, by relay and event type",
		},
		[]string{"relay", "event"},
	)

	// relayRunning is 1 while a child is believed alive
	relayRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayctl_relay_running",
			Help: "Whether the relay child process is running (1) or not (0)",
		},
		[]string{"relay"},
	)

	// configWrites counts POST /api/config outcomes
	configWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_config_writes_total",
			Help: "Relay config writes through the API, by result",
		},
		[]string{"result"},
	)

	// configReloads counts restarts triggered by on-disk edits
	configReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayctl_config_reloads_total",
			Help: "Relay restarts triggered by external config file edits",
		},
	)

	// sinkErrors counts lifecycle events a sink failed to deliver
	sinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_event_sink_errors_total",
			Help: "Lifecycle event delivery failures, by sink",
		},
		[]string{"sink"},
	)

	// httpRequests counts API requests by method and status
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayctl_http_requests_total",
			Help: "HTTP requests served, by method and status code",
		},
		[]string{"method", "status"},
	)
)

// RecordOutputLine increments the output line counter.
func RecordOutputLine(relay string, level slog.Level) {
	lvl := "info"
	if level >= slog.LevelError {
		lvl = "error"
	}
	relayOutputLines.WithLabelValues(relay, lvl).Inc()
}

// RecordLifecycleEvent increments the transition counter.
func RecordLifecycleEvent(relay, event string) {
	relayLifecycleEvents.WithLabelValues(relay, event).Inc()
}

// SetRunning updates the running gauge.
func SetRunning(relay string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	relayRunning.WithLabelValues(relay).Set(v)
}

// RecordConfigWrite increments the config write counter.
func RecordConfigWrite(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	configWrites.WithLabelValues(result).Inc()
}

// RecordConfigReload increments the external-edit restart counter.
func RecordConfigReload() {
	configReloads.Inc()
}

// RecordSinkError increments the sink failure counter.
func RecordSinkError(sink string) {
	sinkErrors.WithLabelValues(sink).Inc()
}

// RecordHTTPRequest increments the request counter.
func RecordHTTPRequest(method string, status int) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
