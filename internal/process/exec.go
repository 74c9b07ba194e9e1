package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// ExecSpawner starts real operating-system processes.
//
// Each child gets its own process group so termination reaches anything it
// forks. stdout and stderr share a single pipe, which keeps the relative
// order of lines the child wrote.
type ExecSpawner struct{}

// Spawn implements Spawner.
func (ExecSpawner) Spawn(c Command) (Process, io.ReadCloser, error) {
	cmd := exec.Command(c.Path, c.Args...) //nolint:gosec // Binary path comes from operator config

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if c.Env != nil {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, fmt.Errorf("starting %s: %w", c.Name, err)
	}

	// The child holds its own copy of the write end; ours must be closed
	// or the reader never sees EOF.
	pw.Close()

	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go p.reap()

	return p, pr, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Terminate() error {
	return p.signalGroup(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signalGroup(syscall.SIGKILL)
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// signalGroup sends sig to the child's whole process group.
// Once reaped, the pid may belong to someone else, so nothing is sent.
func (p *execProcess) signalGroup(sig syscall.Signal) error {
	select {
	case <-p.done:
		return ErrProcessGone
	default:
	}

	// Negative pid addresses the group created via Setpgid.
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return ErrProcessGone
		}
		return fmt.Errorf("sending %v to process group %d: %w", sig, p.cmd.Process.Pid, err)
	}
	return nil
}
