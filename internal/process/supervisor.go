package process

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Status represents the current state of the supervised relay.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"

	// StatusExited means a child was started and has since died without
	// being stopped. The handle is cleared on the next Stop or Start.
	StatusExited Status = "exited"
)

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultPollInterval    = 100 * time.Millisecond
)

// Config holds configuration for the supervised relay.
type Config struct {
	// Name is a human-readable identifier for logging and events.
	Name string

	// Binary is the path to the relay executable.
	Binary string

	// ConfigPath is passed to the binary as its first argument.
	ConfigPath string

	// Args are appended after ConfigPath.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL,
	// and again after SIGKILL before giving up.
	GracefulTimeout time.Duration

	// PollInterval is how often liveness is checked while stopping.
	PollInterval time.Duration

	// Watchdog clears the handle and emits EventExited as soon as a
	// child dies on its own. Without it, a crash is only noticed by the
	// next lifecycle call.
	Watchdog bool

	// Spawner launches the child. Defaults to ExecSpawner.
	Spawner Spawner

	// Output receives forwarded child output. Defaults to discarding it.
	Output LineSink

	// OnEvent is called once per lifecycle transition, in order, outside
	// the lifecycle lock. The operation that caused the transition returns
	// after delivery. OnEvent may read PID or Stats but must not call
	// Start, Stop or Restart.
	OnEvent func(Event)
}

// handle is the supervisor's reference to the current child.
type handle struct {
	proc      Process
	startedAt time.Time
	stopping  bool
}

func (h *handle) exited() bool {
	select {
	case <-h.proc.Done():
		return true
	default:
		return false
	}
}

// Supervisor owns at most one running relay child.
//
// Start, Stop and Restart are serialized by a single mutex, so concurrent
// callers from HTTP handlers, the config watcher and signal handling
// never interleave. Each call returns only once its transition is complete.
type Supervisor struct {
	config Config
	logger Logger

	mu         sync.Mutex
	current    *handle
	startCount int
	lastError  error
	pending    []Event
	closed     bool
	nextTicket uint64

	// Events are delivered outside mu, one transition at a time, in the
	// order tickets were taken under mu.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	serving    uint64

	forwarders       sync.WaitGroup
	activeForwarders atomic.Int32
}

// NewSupervisor creates a supervisor. Nothing is started until Start.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Spawner == nil {
		cfg.Spawner = ExecSpawner{}
	}
	if cfg.Output == nil {
		cfg.Output = noopSink{}
	}

	s := &Supervisor{
		config: cfg,
		logger: noopLogger{},
	}
	s.notifyCond = sync.NewCond(&s.notifyMu)
	return s
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Start stops any running child and launches a fresh one.
// Returns false if the old child could not be stopped or the spawn failed.
func (s *Supervisor) Start() bool {
	s.mu.Lock()
	defer s.unlockAndNotify()
	return s.startLocked()
}

// Stop terminates the running child, escalating to SIGKILL if it ignores
// SIGTERM for GracefulTimeout. Stopping with no child is a successful no-op.
// Returns false only if signaling failed or the child survived SIGKILL.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	defer s.unlockAndNotify()
	return s.stopLocked()
}

// Restart is Start: the previous child is always stopped first.
func (s *Supervisor) Restart() bool {
	s.mu.Lock()
	defer s.unlockAndNotify()
	s.logger.Info("restarting relay", "name", s.config.Name)
	return s.startLocked()
}

// Shutdown stops the child and waits up to timeout for its output to drain.
// Afterwards Start and Restart refuse to spawn, so a late command cannot
// leave a child behind once relayctl exits.
func (s *Supervisor) Shutdown(timeout time.Duration) bool {
	s.mu.Lock()
	s.closed = true
	ok := s.stopLocked()
	s.unlockAndNotify()

	drained := make(chan struct{})
	go func() {
		s.forwarders.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(timeout):
		s.logger.Warn("output forwarders still running at shutdown",
			"name", s.config.Name,
			"active", s.ActiveForwarders(),
		)
	}
	return ok
}

func (s *Supervisor) startLocked() bool {
	if s.closed {
		s.logger.Warn("not starting relay, supervisor is shut down", "name", s.config.Name)
		return false
	}
	if !s.stopLocked() {
		s.logger.Error("not starting relay, previous instance is still alive", "name", s.config.Name)
		return false
	}

	s.logger.Info("starting relay",
		"name", s.config.Name,
		"binary", s.config.Binary,
		"config", s.config.ConfigPath,
	)

	proc, output, err := s.config.Spawner.Spawn(s.command())
	if err != nil {
		s.lastError = err
		s.logger.Error("failed to start relay", "name", s.config.Name, "error", err)
		s.emit(Event{Type: EventSpawnFailed, Err: err.Error()})
		return false
	}

	h := &handle{proc: proc, startedAt: time.Now()}
	s.current = h
	s.startCount++
	s.lastError = nil

	pid := proc.Pid()
	s.startForwarder(output, pid)
	if s.config.Watchdog {
		go s.watch(h)
	}

	s.logger.Info("relay started", "name", s.config.Name, "pid", pid)
	s.emit(Event{Type: EventStarted, PID: pid})
	return true
}

func (s *Supervisor) stopLocked() bool {
	h := s.current
	if h == nil {
		return true
	}
	pid := h.proc.Pid()

	if h.exited() {
		err := h.proc.ExitErr()
		s.logger.Warn("relay had already exited", "name", s.config.Name, "pid", pid, "error", err)
		s.clearLocked(err)
		s.emit(Event{Type: EventStopped, PID: pid, Err: errString(err)})
		return true
	}

	h.stopping = true
	s.logger.Info("stopping relay", "name", s.config.Name, "pid", pid)

	if err := h.proc.Terminate(); err != nil && !isGone(err) {
		return s.stopFailedLocked(pid, err)
	}

	if s.waitExit(h, s.config.GracefulTimeout) {
		s.logger.Info("relay stopped gracefully", "name", s.config.Name, "pid", pid)
		s.clearLocked(nil)
		s.emit(Event{Type: EventStopped, PID: pid})
		return true
	}

	s.logger.Warn("graceful shutdown timeout, sending SIGKILL",
		"name", s.config.Name,
		"pid", pid,
		"timeout", s.config.GracefulTimeout,
	)

	if err := h.proc.Kill(); err != nil && !isGone(err) {
		return s.stopFailedLocked(pid, err)
	}

	if s.waitExit(h, s.config.GracefulTimeout) {
		s.logger.Info("relay killed", "name", s.config.Name, "pid", pid)
		s.clearLocked(nil)
		s.emit(Event{Type: EventKilled, PID: pid, Forced: true})
		return true
	}

	return s.stopFailedLocked(pid, errors.New("process did not exit after SIGKILL"))
}

// stopFailedLocked records a failed stop. The handle is kept so a later
// Stop can try again.
func (s *Supervisor) stopFailedLocked(pid int, err error) bool {
	s.current.stopping = false
	s.lastError = err
	s.logger.Error("failed to stop relay", "name", s.config.Name, "pid", pid, "error", err)
	s.emit(Event{Type: EventStopFailed, PID: pid, Err: err.Error()})
	return false
}

func (s *Supervisor) clearLocked(exitErr error) {
	s.current = nil
	if exitErr != nil {
		s.lastError = exitErr
	}
}

// waitExit polls liveness every PollInterval until the child is gone or
// timeout elapses.
func (s *Supervisor) waitExit(h *handle, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if h.exited() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		<-ticker.C
	}
}

// watch clears a handle whose child died on its own.
// Done is closed before mu is taken, so a Stop holding mu while polling
// always observes the exit first and this becomes a no-op.
func (s *Supervisor) watch(h *handle) {
	<-h.proc.Done()

	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.current != h || h.stopping {
		return
	}

	err := h.proc.ExitErr()
	pid := h.proc.Pid()
	s.logger.Warn("relay exited unexpectedly", "name", s.config.Name, "pid", pid, "error", err)
	s.clearLocked(err)
	s.emit(Event{Type: EventExited, PID: pid, Err: errString(err)})
}

func (s *Supervisor) startForwarder(output io.ReadCloser, pid int) {
	s.forwarders.Add(1)
	s.activeForwarders.Add(1)

	go func() {
		defer s.forwarders.Done()
		defer s.activeForwarders.Add(-1)
		defer output.Close()

		if err := Forward(output, pid, s.config.Output); err != nil {
			s.logger.Debug("relay output stream closed", "name", s.config.Name, "pid", pid, "error", err)
		}
	}()
}

func (s *Supervisor) command() Command {
	args := make([]string, 0, len(s.config.Args)+1)
	args = append(args, s.config.ConfigPath)
	args = append(args, s.config.Args...)

	return Command{
		Name: s.config.Name,
		Path: s.config.Binary,
		Args: args,
		Dir:  s.config.WorkDir,
		Env:  s.config.Env,
	}
}

// emit queues an event for delivery once mu is released.
func (s *Supervisor) emit(ev Event) {
	ev.Name = s.config.Name
	ev.Time = time.Now()
	s.pending = append(s.pending, ev)
}

// unlockAndNotify releases mu and delivers queued events. The ticket is
// taken under mu; delivery waits only for earlier tickets, never with mu
// held, so accessors stay responsive while a slow OnEvent runs.
func (s *Supervisor) unlockAndNotify() {
	events := s.pending
	s.pending = nil
	if len(events) == 0 || s.config.OnEvent == nil {
		s.mu.Unlock()
		return
	}
	ticket := s.nextTicket
	s.nextTicket++
	s.mu.Unlock()

	s.notifyMu.Lock()
	for s.serving != ticket {
		s.notifyCond.Wait()
	}
	s.notifyMu.Unlock()

	defer func() {
		s.notifyMu.Lock()
		s.serving++
		s.notifyCond.Broadcast()
		s.notifyMu.Unlock()
	}()

	for _, ev := range events {
		s.config.OnEvent(ev)
	}
}

// PID returns the child's process ID, or 0 if none is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.exited() {
		return 0
	}
	return s.current.proc.Pid()
}

// IsRunning returns true if a child is held and has not exited.
func (s *Supervisor) IsRunning() bool {
	return s.PID() != 0
}

// ActiveForwarders returns how many output forwarders are still reading.
func (s *Supervisor) ActiveForwarders() int {
	return int(s.activeForwarders.Load())
}

// Stats returns statistics about the supervised relay.
type Stats struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	PID        int           `json:"pid,omitempty"`
	Uptime     time.Duration `json:"uptime,omitempty"`
	StartCount int           `json:"start_count"`
	LastError  string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the relay.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Name:       s.config.Name,
		Status:     StatusStopped,
		StartCount: s.startCount,
		LastError:  errString(s.lastError),
	}

	if h := s.current; h != nil {
		if h.exited() {
			stats.Status = StatusExited
			stats.LastError = errString(h.proc.ExitErr())
		} else {
			stats.Status = StatusRunning
			stats.PID = h.proc.Pid()
			stats.Uptime = time.Since(h.startedAt)
		}
	}

	return stats
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
