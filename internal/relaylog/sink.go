// Package relaylog collects the supervised relay's output.
//
// Each line is written to the structured log under component=relay, counted
// in Prometheus, kept in a bounded in-memory tail for the API, and handed
// to live subscribers such as the WebSocket hub.
package relaylog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nerrad567/relayctl/internal/infrastructure/logging"
	"github.com/nerrad567/relayctl/internal/metrics"
	"github.com/nerrad567/relayctl/internal/process"
)

// DefaultCapacity is the tail size used when none is configured.
const DefaultCapacity = 500

// Entry is one retained line of relay output.
type Entry struct {
	Time  time.Time `json:"time"`
	PID   int       `json:"pid"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

// Sink implements process.LineSink.
//
// Thread Safety:
//   - WriteLine may be called from several forwarders at once.
//   - Subscribers are called outside the buffer lock, on the writer's goroutine.
type Sink struct {
	relay  string
	logger *logging.Logger

	mu   sync.RWMutex
	buf  []Entry
	next int
	size int

	subMu   sync.RWMutex
	subs    map[int]func(Entry)
	nextSub int
}

// New creates a sink retaining the last capacity lines. A capacity of zero
// disables retention; negative values use DefaultCapacity.
func New(relay string, capacity int, logger *logging.Logger) *Sink {
	if capacity < 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sink{
		relay:  relay,
		logger: logger.Component("relay"),
		buf:    make([]Entry, capacity),
		subs:   make(map[int]func(Entry)),
	}
}

// WriteLine records one line of relay output.
func (s *Sink) WriteLine(line process.Line) {
	s.logger.Log(context.Background(), line.Level, line.Text, "relay", s.relay, "stream", "output", "pid", line.PID)
	metrics.RecordOutputLine(s.relay, line.Level)

	entry := Entry{
		Time:  line.Time,
		PID:   line.PID,
		Level: levelName(line.Level),
		Text:  line.Text,
	}

	if len(s.buf) > 0 {
		s.mu.Lock()
		s.buf[s.next] = entry
		s.next = (s.next + 1) % len(s.buf)
		if s.size < len(s.buf) {
			s.size++
		}
		s.mu.Unlock()
	}

	s.subMu.RLock()
	subs := make([]func(Entry), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(entry)
	}
}

// Recent returns up to limit retained lines, oldest first.
// A limit of zero or less returns everything retained.
func (s *Sink) Recent(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.size
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Entry, n)
	start := s.next - n
	if start < 0 {
		start += len(s.buf)
	}
	for i := 0; i < n; i++ {
		out[i] = s.buf[(start+i)%len(s.buf)]
	}
	return out
}

// Subscribe registers fn for every future line. Call the returned function
// to unsubscribe.
func (s *Sink) Subscribe(fn func(Entry)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func levelName(level slog.Level) string {
	if level >= slog.LevelError {
		return "error"
	}
	return "info"
}
