package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/relayctl/internal/audit"
	"github.com/nerrad567/relayctl/internal/metrics"
)

// ConfigResult is the POST /api/config response after the config was persisted.
type ConfigResult struct {
	Success bool `json:"success"`
	Restart bool `json:"restart"`
}

// FailureResult reports a config that was not persisted.
type FailureResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// LifecycleResult is the response of restart, start and stop.
type LifecycleResult struct {
	Success bool `json:"success"`
}

const defaultRevisionLimit = 20

// handleGetConfig returns the relay config as plain text. A read failure
// is reported in the body with status 200.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	data, err := s.store.Read()
	if err != nil {
		s.logger.Warn("reading relay config failed", "error", err)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Error reading config: %v", err) //nolint:errcheck // Best-effort response write
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // Best-effort response write
}

// handlePostConfig replaces the relay config with the request body and
// restarts the relay.
func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, FailureResult{Error: "reading request body: " + err.Error()})
		return
	}

	s.applyConfig(r.Context(), w, body, nil)
}

// applyConfig persists content, records it, restarts the relay and writes
// the response. details are added to the audit entry.
func (s *Server) applyConfig(ctx context.Context, w http.ResponseWriter, content []byte, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["bytes"] = len(content)

	if err := s.store.Write(content); err != nil {
		metrics.RecordConfigWrite(false)
		s.logger.Error("persisting relay config failed", "error", err)
		details["error"] = err.Error()
		s.auditLog(audit.ActionConfigWrite, "config", false, details)
		writeJSON(w, http.StatusInternalServerError, FailureResult{Error: err.Error()})
		return
	}
	metrics.RecordConfigWrite(true)

	if s.revisions != nil {
		rev, err := s.revisions.SaveRevision(ctx, content, audit.SourceAPI)
		if err != nil {
			s.logger.Warn("saving config revision failed", "error", err)
		} else {
			details["revision"] = rev.ID
		}
	}
	s.auditLog(audit.ActionConfigWrite, "config", true, details)

	restarted := s.sup.Restart()
	s.auditLog(audit.ActionRelayRestart, "relay", restarted, map[string]any{"reason": "config.write"})

	s.logger.Info("relay config updated", "bytes", len(content), "restart", restarted)
	writeJSON(w, http.StatusOK, ConfigResult{Success: true, Restart: restarted})
}

// handleRestart restarts the relay without touching its config.
func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	ok := s.sup.Restart()
	s.auditLog(audit.ActionRelayRestart, "relay", ok, nil)
	writeJSON(w, http.StatusOK, LifecycleResult{Success: ok})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	ok := s.sup.Start()
	s.auditLog(audit.ActionRelayStart, "relay", ok, nil)
	writeJSON(w, http.StatusOK, LifecycleResult{Success: ok})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	ok := s.sup.Stop()
	s.auditLog(audit.ActionRelayStop, "relay", ok, nil)
	writeJSON(w, http.StatusOK, LifecycleResult{Success: ok})
}

// handleListRevisions lists recent config revisions without their content.
func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	if s.revisions == nil {
		writeUnavailable(w, "config history requires the database")
		return
	}

	limit := defaultRevisionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	revs, err := s.revisions.ListRevisions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list config revisions", "error", err)
		writeInternalError(w, "failed to list config revisions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

func (s *Server) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	if s.revisions == nil {
		writeUnavailable(w, "config history requires the database")
		return
	}

	rev, err := s.revisions.GetRevision(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrRevisionNotFound) {
		writeNotFound(w, "config revision not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load config revision", "error", err)
		writeInternalError(w, "failed to load config revision")
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// handleRestoreRevision writes an earlier revision back as the live
// config, exactly as a POST /api/config with that body would.
func (s *Server) handleRestoreRevision(w http.ResponseWriter, r *http.Request) {
	if s.revisions == nil {
		writeUnavailable(w, "config history requires the database")
		return
	}

	id := chi.URLParam(r, "id")
	rev, err := s.revisions.GetRevision(r.Context(), id)
	if errors.Is(err, audit.ErrRevisionNotFound) {
		writeNotFound(w, "config revision not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load config revision", "error", err)
		writeInternalError(w, "failed to load config revision")
		return
	}

	s.applyConfig(r.Context(), w, []byte(rev.Content), map[string]any{"restored_from": id})
}
