package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/relayctl/internal/audit"
	"github.com/nerrad567/relayctl/internal/infrastructure/config"
	"github.com/nerrad567/relayctl/internal/infrastructure/logging"
	"github.com/nerrad567/relayctl/internal/process"
	"github.com/nerrad567/relayctl/internal/relaylog"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Supervisor is the lifecycle surface the API drives.
// process.Supervisor satisfies it.
type Supervisor interface {
	Start() bool
	Stop() bool
	Restart() bool
	Stats() process.Stats
}

// ConfigStore reads and replaces the relay config document.
type ConfigStore interface {
	Read() ([]byte, error)
	Write(content []byte) error
}

// OutputLog is the retained and live relay output.
type OutputLog interface {
	Recent(limit int) []relaylog.Entry
	Subscribe(fn func(relaylog.Entry)) func()
}

// HealthChecker is implemented by each optional integration.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Supervisor Supervisor
	Store      ConfigStore

	// Optional.
	Output    OutputLog
	Audit     audit.Repository
	Revisions audit.RevisionStore
	Checks    map[string]HealthChecker
	UI        http.Handler
	Version   string
}

// Server is the relay control HTTP API.
//
//	srv, err := api.New(deps)
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close()
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	sup       Supervisor
	store     ConfigStore
	output    OutputLog
	auditRepo audit.Repository
	revisions audit.RevisionStore
	checks    map[string]HealthChecker
	ui        http.Handler
	version   string
	startTime time.Time

	hub       *Hub
	auditCh   chan *audit.AuditLog
	auditDone chan struct{}

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	unsub    func()
	closeMu  sync.Mutex
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("config store is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger.Component("api"),
		sup:       deps.Supervisor,
		store:     deps.Store,
		output:    deps.Output,
		auditRepo: deps.Audit,
		revisions: deps.Revisions,
		checks:    deps.Checks,
		ui:        deps.UI,
		version:   deps.Version,
		startTime: time.Now(),
		auditCh:   make(chan *audit.AuditLog, auditChanSize),
	}

	s.hub = NewHub(deps.WS, deps.Supervisor, deps.Output, deps.Logger)

	return s, nil
}

// Hub returns the WebSocket hub, for wiring lifecycle broadcasts.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. Background work
// (hub, audit writer, output relay) stops when ctx is cancelled or Close
// is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.auditDone = make(chan struct{})
	go func() {
		defer close(s.auditDone)
		s.drainAuditLog(srvCtx)
	}()

	if s.output != nil {
		s.unsub = s.output.Subscribe(func(e relaylog.Entry) {
			s.hub.Broadcast(ChannelOutput, e)
		})
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops background work and shuts the listener down, waiting up
// to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.server == nil {
		return nil
	}

	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if s.auditDone != nil {
		<-s.auditDone
	}
	s.server = nil

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Handler returns the routed handler without listening, for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}
