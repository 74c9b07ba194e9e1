package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// LifecycleMeasurement is the measurement holding relay lifecycle points.
const LifecycleMeasurement = "relay_lifecycle"

// LifecyclePoint is one relay start, stop, kill or exit.
type LifecyclePoint struct {
	Relay string
	Event string
	PID   int
	// Forced marks a stop that needed SIGKILL.
	Forced bool
	Error  string
	Time   time.Time
}

// WriteLifecycleEvent queues a lifecycle point. It does nothing once the
// client is closed.
//
//	client.WriteLifecycleEvent(influxdb.LifecyclePoint{
//	    Relay: "mediamtx", Event: "killed", PID: 4312, Forced: true, Time: time.Now(),
//	})
func (c *Client) WriteLifecycleEvent(p LifecyclePoint) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"pid":    p.PID,
		"forced": p.Forced,
	}
	if p.Error != "" {
		fields["error"] = p.Error
	}

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		LifecycleMeasurement,
		map[string]string{
			"relay": p.Relay,
			"event": p.Event,
		},
		fields,
		ts,
	))
}
