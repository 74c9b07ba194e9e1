package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/relayctl/internal/relaylog"
)

const healthCheckTimeout = 3 * time.Second

// StatusResponse is the GET /api/status body.
type StatusResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Relay         RelayStatus    `json:"relay"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
}

// RelayStatus is the supervisor's view of the relay.
type RelayStatus struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	StartCount    int    `json:"start_count"`
	LastError     string `json:"last_error,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := s.sup.Stats()

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Relay: RelayStatus{
			Name:          stats.Name,
			Status:        string(stats.Status),
			PID:           stats.PID,
			UptimeSeconds: int64(stats.Uptime.Seconds()),
			StartCount:    stats.StartCount,
			LastError:     stats.LastError,
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	})
}

// handleHealth reports "ok", or "degraded" with 503 when any enabled
// integration fails its check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		results := make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.HealthCheck(ctx); err != nil {
				results[name] = err.Error()
				resp["status"] = "degraded"
			} else {
				results[name] = "ok"
			}
		}
		resp["checks"] = results
	}

	status := http.StatusOK
	if resp["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleLogs returns retained relay output, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := []relaylog.Entry{}
	if s.output != nil {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeBadRequest(w, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		lines = s.output.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}
