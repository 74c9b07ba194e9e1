package process

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"time"
)

// ErrProcessGone is returned by Process signaling methods when the process
// has already exited. The supervisor treats it as a successful stop.
var ErrProcessGone = errors.New("process: already exited")

// Process is a running child. Implementations must be safe for concurrent use.
type Process interface {
	// Pid returns the operating-system process ID.
	Pid() int

	// Terminate asks the process to shut down cooperatively (SIGTERM).
	Terminate() error

	// Kill forcibly ends the process (SIGKILL).
	Kill() error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// ExitErr reports how the process ended. Only meaningful after Done is closed.
	ExitErr() error
}

// Command describes one launch of the supervised binary.
type Command struct {
	Name string
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Spawner launches processes. The returned stream carries the child's
// combined stdout and stderr and reaches EOF when the child closes it.
type Spawner interface {
	Spawn(cmd Command) (Process, io.ReadCloser, error)
}

// EventType identifies a lifecycle transition.
type EventType string

const (
	EventStarted     EventType = "started"
	EventSpawnFailed EventType = "spawn_failed"
	EventStopped     EventType = "stopped"
	EventKilled      EventType = "killed"
	EventStopFailed  EventType = "stop_failed"
	EventExited      EventType = "exited"
)

// Event is emitted once per lifecycle transition, in transition order.
type Event struct {
	Type EventType `json:"type"`
	Name string    `json:"name"`
	PID  int       `json:"pid,omitempty"`
	Time time.Time `json:"time"`
	// Forced is set when the stop needed SIGKILL.
	Forced bool   `json:"forced,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Line is one line of child output.
type Line struct {
	PID   int
	Level slog.Level
	Text  string
	Time  time.Time
}

// LineSink receives forwarded output. WriteLine is called from forwarder
// goroutines, possibly several at once.
type LineSink interface {
	WriteLine(line Line)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopSink struct{}

func (noopSink) WriteLine(Line) {}

// isGone reports whether a signaling error means the target no longer exists.
func isGone(err error) bool {
	return errors.Is(err, ErrProcessGone) || errors.Is(err, os.ErrProcessDone)
}
