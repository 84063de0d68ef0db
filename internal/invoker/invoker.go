// Package invoker runs the external formatter as a subprocess.
//
// An Invoker resolves the executable, feeds the source text to the tool's
// stdin and exposes stdout as a stream so the caller can parse output while
// the tool is still running. Stderr is accumulated for diagnostics. Every run
// is tracked by a process.Supervisor and reaped before Run.Wait returns.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/clangfmt/internal/binpath"
	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/process"
)

// DefaultWaitDelay bounds how long Wait keeps copying output after the
// formatter has been killed.
const DefaultWaitDelay = 2 * time.Second

// errAborted is delivered to readers of a run the consumer gave up on.
var errAborted = errors.New("formatter run aborted")

// Invocation describes one formatter run.
type Invocation struct {
	// Executable is a bare command name or a path.
	Executable string

	// Args are passed to the executable verbatim.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Input is written to stdin, which is then closed.
	Input []byte
}

// Outcome is what a finished run produced.
type Outcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
}

// Invoker starts formatter runs. It is safe for concurrent use.
type Invoker struct {
	resolver   *binpath.Resolver
	supervisor *process.Supervisor
	logger     *slog.Logger
	waitDelay  time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithResolver sets the executable resolver. Share one per process.
func WithResolver(r *binpath.Resolver) Option {
	return func(iv *Invoker) {
		iv.resolver = r
	}
}

// WithSupervisor sets the supervisor that tracks spawned formatters.
func WithSupervisor(s *process.Supervisor) Option {
	return func(iv *Invoker) {
		iv.supervisor = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(iv *Invoker) {
		iv.logger = l
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(iv *Invoker) {
		iv.waitDelay = d
	}
}

// New creates an Invoker.
func New(opts ...Option) *Invoker {
	iv := &Invoker{waitDelay: DefaultWaitDelay}
	for _, opt := range opts {
		opt(iv)
	}
	if iv.resolver == nil {
		iv.resolver = binpath.NewResolver()
	}
	if iv.supervisor == nil {
		iv.supervisor = process.NewSupervisor()
	}
	if iv.logger == nil {
		iv.logger = slog.New(slog.DiscardHandler)
	}
	return iv
}

// Supervisor returns the supervisor tracking this invoker's runs.
func (iv *Invoker) Supervisor() *process.Supervisor {
	return iv.supervisor
}

// Shutdown terminates running formatters and refuses new runs.
func (iv *Invoker) Shutdown(timeout time.Duration) {
	iv.supervisor.Shutdown(timeout)
}

// Start spawns the formatter for inv.
//
// A tool that cannot be started yields a ToolNotFound error. If ctx ends
// before the run is reaped the tool is killed, the output stream fails and
// Wait reports Cancelled.
func (iv *Invoker) Start(ctx context.Context, inv Invocation) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, ferrors.Cancelled(err)
	}

	path := iv.resolver.Resolve(inv.Executable)

	r := &Run{path: path, ctx: ctx}
	pr, pw := io.Pipe()
	r.out, r.pw = pr, pw

	cmd := exec.Command(path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdin = bytes.NewReader(inv.Input)
	cmd.Stdout = io.MultiWriter(&r.stdout, pw)
	cmd.Stderr = &r.stderr
	cmd.WaitDelay = iv.waitDelay

	proc, err := iv.supervisor.Spawn(ctx, filepath.Base(path), cmd)
	if err != nil {
		_ = pw.Close()
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, ferrors.Cancelled(err)
		case errors.Is(err, process.ErrShutdown):
			return nil, ferrors.Cancelled(err)
		}
		iv.logger.Info("formatter not found", "executable", inv.Executable, "path", path, "error", err)
		return nil, ferrors.NewNotFound(path, err)
	}
	r.proc = proc

	iv.logger.Debug("formatter started",
		"id", proc.ID,
		"pid", proc.PID(),
		"path", path,
		"args", inv.Args,
		"dir", inv.Dir,
		"input_bytes", len(inv.Input),
	)

	go r.watch()
	return r, nil
}

// Run is one spawned formatter.
type Run struct {
	path string
	ctx  context.Context
	proc *process.Process

	out    *io.PipeReader
	pw     *io.PipeWriter
	stdout bytes.Buffer
	stderr bytes.Buffer

	cancelled atomic.Bool
	aborted   atomic.Bool

	waitOnce sync.Once
	outcome  *Outcome
	err      error
}

// watch ends the output stream when the tool has been reaped, and kills the
// tool when the context ends first.
func (r *Run) watch() {
	select {
	case <-r.ctx.Done():
		r.cancelled.Store(true)
		r.pw.CloseWithError(ferrors.Cancelled(r.ctx.Err()))
		_ = r.proc.Kill()
		<-r.proc.Done()
	case <-r.proc.Done():
	}
	_ = r.pw.Close()
}

// ID returns the supervisor ID of the run.
func (r *Run) ID() string {
	return r.proc.ID
}

// Path returns the resolved executable.
func (r *Run) Path() string {
	return r.path
}

// Output returns the tool's stdout as a stream. It reaches io.EOF once the
// tool has exited and all output has been read.
func (r *Run) Output() io.Reader {
	return r.out
}

// Abort kills the tool after the consumer failed. Output readers get an error.
func (r *Run) Abort() {
	r.aborted.Store(true)
	r.pw.CloseWithError(errAborted)
	_ = r.proc.Kill()
}

// Wait discards unread output, waits for the tool to be reaped and reports
// the outcome. A run that was cancelled returns Cancelled; a tool that
// exited non-zero or wrote to stderr returns FormatFailure. A tool killed by
// Abort returns no error, leaving the consumer's error to stand.
//
// Wait must not be called while another goroutine is reading Output.
func (r *Run) Wait() (*Outcome, error) {
	r.waitOnce.Do(func() {
		_, _ = io.Copy(io.Discard, r.out)
		<-r.proc.Done()
		r.outcome, r.err = r.result()
	})
	return r.outcome, r.err
}

func (r *Run) result() (*Outcome, error) {
	out := &Outcome{ExitCode: r.proc.ExitCode()}

	if r.cancelled.Load() {
		return out, ferrors.Cancelled(r.ctx.Err())
	}

	out.Stdout = r.stdout.Bytes()
	out.Stderr = r.stderr.String()

	if r.aborted.Load() && r.proc.State() == process.StateKilled {
		return out, nil
	}
	if r.proc.State() == process.StateKilled || out.ExitCode != 0 || r.stderr.Len() > 0 {
		return out, ferrors.NewFailure(r.path, out.ExitCode, out.Stderr)
	}
	return out, nil
}
