package process

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProcess is an in-memory child. Output written to out reaches the
// supervisor's forwarder; exit closes it.
type fakeProcess struct {
	pid        int
	ignoreTerm bool
	ignoreKill bool
	termErr    error

	out  *io.PipeWriter
	done chan struct{}
	once sync.Once

	exitErr error
	terms   atomic.Int32
	kills   atomic.Int32
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Terminate() error {
	if p.alive() {
		p.terms.Add(1)
	} else {
		return ErrProcessGone
	}
	if p.termErr != nil {
		return p.termErr
	}
	if !p.ignoreTerm {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	if p.alive() {
		p.kills.Add(1)
	} else {
		return ErrProcessGone
	}
	if !p.ignoreKill {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitErr() error { return p.exitErr }

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.exitErr = err
		p.out.Close()
		close(p.done)
	})
}

func (p *fakeProcess) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

type fakeSpawner struct {
	mu        sync.Mutex
	err       error
	configure func(p *fakeProcess)
	procs     []*fakeProcess
	commands  []Command
}

func (s *fakeSpawner) Spawn(c Command) (Process, io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, c)
	if s.err != nil {
		return nil, nil, s.err
	}

	pr, pw := io.Pipe()
	p := &fakeProcess{
		pid:  1001 + len(s.procs),
		out:  pw,
		done: make(chan struct{}),
	}
	if s.configure != nil {
		s.configure(p)
	}
	s.procs = append(s.procs, p)
	return p, pr, nil
}

func (s *fakeSpawner) all() []*fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProcess(nil), s.procs...)
}

func (s *fakeSpawner) last() *fakeProcess {
	procs := s.all()
	if len(procs) == 0 {
		return nil
	}
	return procs[len(procs)-1]
}

type recordingSink struct {
	mu    sync.Mutex
	lines []Line
}

func (r *recordingSink) WriteLine(line Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingSink) snapshot() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
