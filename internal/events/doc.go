// Package events routes relay lifecycle transitions to everything that
// wants to know about them: Prometheus, the audit log, MQTT, InfluxDB
// and WebSocket clients.
//
//	d := events.NewDispatcher(logger)
//	d.Register("metrics", events.MetricsSink())
//	d.Register("mqtt", events.MQTTSink(mqttClient))
//
//	sup := process.NewSupervisor(process.Config{
//	    // ...
//	    OnEvent: d.Dispatch,
//	})
package events
