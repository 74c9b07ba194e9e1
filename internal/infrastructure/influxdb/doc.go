// Package influxdb records relay lifecycle history in InfluxDB v2.
//
// Every start, stop, kill and unexpected exit becomes one point in the
// relay_lifecycle measurement, tagged by relay and event, so restarts and
// forced kills can be graphed over time.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//	client.WriteLifecycleEvent(influxdb.LifecyclePoint{Relay: "mediamtx", Event: "started", PID: pid})
//
// Writes are batched per batch_size and flush_interval; connection and
// health check errors are returned directly.
package influxdb
