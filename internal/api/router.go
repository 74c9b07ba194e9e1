package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultWSPath = "/api/ws"

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handlePostConfig)
		r.Get("/config/revisions", s.handleListRevisions)
		r.Get("/config/revisions/{id}", s.handleGetRevision)
		r.Post("/config/revisions/{id}/restore", s.handleRestoreRevision)

		r.Get("/restart", s.handleRestart)
		r.Post("/restart", s.handleRestart)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)

		r.Get("/logs", s.handleLogs)
		r.Get("/audit", s.handleListAuditLogs)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Handle("/metrics", promhttp.Handler())

	if s.ui != nil {
		r.Handle("/*", s.ui)
	}

	return r
}
