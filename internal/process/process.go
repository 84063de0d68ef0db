package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State is the lifecycle stage of a Process.
type State int32

const (
	StateCreated State = iota
	StateRunning
	// StateExited means the child exited by itself, with any status.
	StateExited
	// StateKilled means the child was ended by a signal.
	StateKilled
)

var stateNames = [...]string{"created", "running", "exited", "killed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// Process is one formatter child. It is reaped by a single goroutine and
// Done is closed once exec.Cmd.Wait has returned, after output copying.
type Process struct {
	ID   string
	Name string
	Cmd  *exec.Cmd

	state    atomic.Int32
	exitCode atomic.Int32
	done     chan struct{}

	mu      sync.Mutex
	started time.Time
	ended   time.Time
	waitErr error

	onReaped func(*Process)
}

func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{ID: id, Name: name, Cmd: cmd, done: make(chan struct{})}
	p.exitCode.Store(-1)
	return p
}

func (p *Process) State() State { return State(p.state.Load()) }

// ExitCode is -1 until the child exits, and stays -1 when it was signalled.
func (p *Process) ExitCode() int { return int(p.exitCode.Load()) }

// Done is closed when the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns what exec.Cmd.Wait reported.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// PID is -1 before the child starts.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Runtime returns how long the child ran, or has run so far.
func (p *Process) Runtime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.started.IsZero():
		return 0
	case p.ended.IsZero():
		return time.Since(p.started)
	}
	return p.ended.Sub(p.started)
}

// Kill sends SIGKILL. It is a no-op once the child is gone.
func (p *Process) Kill() error {
	return p.signal(os.Kill)
}

// Terminate sends SIGTERM. It is a no-op once the child is gone.
func (p *Process) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

func (p *Process) signal(sig os.Signal) error {
	if p.State() != StateRunning {
		return nil
	}
	err := p.Cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}
	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	p.mu.Lock()
	p.started = time.Now()
	p.mu.Unlock()
	p.state.Store(int32(StateRunning))

	go p.reap()
	return nil
}

func (p *Process) reap() {
	err := p.Cmd.Wait()

	state, code := StateExited, 0
	if ps := p.Cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			state = StateKilled
		}
	}

	p.mu.Lock()
	p.ended = time.Now()
	p.waitErr = err
	p.mu.Unlock()

	p.exitCode.Store(int32(code))
	p.state.Store(int32(state))
	if p.onReaped != nil {
		p.onReaped(p)
	}
	close(p.done)
}

var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrShutdown       = errors.New("supervisor is shutting down")
)
