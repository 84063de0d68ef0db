package process

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Supervisor starts formatter children and tracks them until they are
// reaped. It is safe for concurrent use.
type Supervisor struct {
	slots *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*Process
	closing bool
}

type SupervisorOption func(*Supervisor)

// WithMaxProcesses bounds how many children run at once; Spawn blocks for
// a free slot. n <= 0 removes the bound.
func WithMaxProcesses(n int) SupervisorOption {
	return func(s *Supervisor) {
		s.slots = nil
		if n > 0 {
			s.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{running: make(map[string]*Process)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts cmd and tracks it under a fresh ID. cmd must have its
// streams set. When the supervisor is bounded Spawn waits for a slot and
// returns ctx.Err() if ctx ends first.
func (s *Supervisor) Spawn(ctx context.Context, name string, cmd *exec.Cmd) (*Process, error) {
	if s.shuttingDown() {
		return nil, ErrShutdown
	}
	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	p := newProcess(uuid.NewString(), name, cmd)
	p.onReaped = s.forget

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.release()
		return nil, ErrShutdown
	}
	s.running[p.ID] = p
	s.mu.Unlock()

	if err := p.start(); err != nil {
		s.forget(p)
		return nil, err
	}
	return p, nil
}

// forget drops a reaped child and frees its slot.
func (s *Supervisor) forget(p *Process) {
	s.mu.Lock()
	delete(s.running, p.ID)
	s.mu.Unlock()
	s.release()
}

func (s *Supervisor) release() {
	if s.slots != nil {
		s.slots.Release(1)
	}
}

func (s *Supervisor) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Count returns the number of children not yet reaped.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Supervisor) tracked() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	procs := make([]*Process, 0, len(s.running))
	for _, p := range s.running {
		procs = append(procs, p)
	}
	return procs
}

// KillAll sends SIGKILL to every tracked child.
func (s *Supervisor) KillAll() {
	for _, p := range s.tracked() {
		_ = p.Kill()
	}
}

// Shutdown refuses new children, sends SIGTERM to running ones and kills
// whatever outlives timeout. It returns once all of them are reaped.
// Later calls return immediately.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()

	procs := s.tracked()
	for _, p := range procs {
		_ = p.Terminate()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, p := range procs {
		select {
		case <-p.Done():
		case <-timer.C:
			s.KillAll()
			<-p.Done()
		}
	}
}
