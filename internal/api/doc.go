// Package api is relayctl's HTTP control surface.
//
// Routes:
//
//	GET  /api/config                         relay config as text (read errors in the body, still 200)
//	POST /api/config                         replace the config and restart the relay
//	GET  /api/config/revisions[/{id}]        config history (database only)
//	POST /api/config/revisions/{id}/restore  re-apply an earlier config
//	GET  /api/restart, POST /api/restart     restart without touching the config
//	POST /api/start, POST /api/stop          explicit lifecycle control
//	GET  /api/status                         supervisor stats and runtime metrics
//	GET  /api/logs?limit=N                   retained relay output
//	GET  /api/audit                          audit trail (database only)
//	GET  /api/health                         liveness plus integration checks
//	GET  /api/ws                             WebSocket: relay.output, relay.lifecycle
//	GET  /metrics                            Prometheus exposition
//	/*                                       web UI
//
// Every response allows any origin, and any OPTIONS request is answered
// with an empty 200. Lifecycle calls block for a full stop and start, so
// api.timeouts.write must exceed relay.stop_timeout.
package api
