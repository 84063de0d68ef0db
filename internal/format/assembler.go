// Package format turns a formatting request into a list of character-offset
// edits by running the external formatter and translating its replacement
// report.
package format

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/invoker"
	"github.com/dshills/clangfmt/internal/offset"
	"github.com/dshills/clangfmt/internal/replacements"
)

// Starter starts formatter runs. *invoker.Invoker implements it.
type Starter interface {
	Start(ctx context.Context, inv invoker.Invocation) (*invoker.Run, error)
}

// Assembler runs formatting requests. It holds no per-request state and is
// safe for concurrent use.
type Assembler struct {
	starter Starter
	unit    offset.Unit
	logger  *slog.Logger
	hook    StateHook
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithUnit sets the character unit of request ranges and result edits.
func WithUnit(u offset.Unit) Option {
	return func(a *Assembler) {
		a.unit = u
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = l
	}
}

// WithStateHook observes the state transitions of every request.
// The hook is called synchronously from Run.
func WithStateHook(h StateHook) Option {
	return func(a *Assembler) {
		a.hook = h
	}
}

// NewAssembler creates an Assembler that starts formatters with s.
func NewAssembler(s Starter, opts ...Option) *Assembler {
	a := &Assembler{starter: s, unit: offset.Runes}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// Unit returns the character unit the assembler works in.
func (a *Assembler) Unit() offset.Unit {
	return a.unit
}

// Run formats req.
//
// On success the Result lists edits in the order the formatter reported
// them. Any failure discards every edit: the error is Cancelled, ToolNotFound,
// FormatFailure or MalformedOutput, checked in that order. ToolNotFound is
// informational and comes with an empty Result.
func (a *Assembler) Run(ctx context.Context, req Request) (*Result, error) {
	st := &tracker{hook: a.hook}
	log := a.logger.With("file", req.AssumeFilename)

	src := []byte(req.Source)

	var span *byteSpan
	if req.Range != nil {
		off, n, err := offset.ByteRange(src, req.Range.Start, req.Range.End, a.unit)
		if err != nil {
			st.to(StateFailed)
			return nil, fmt.Errorf("invalid range: %w", err)
		}
		span = &byteSpan{offset: off, length: n}
	}

	st.to(StateSpawned)
	run, err := a.starter.Start(ctx, invoker.Invocation{
		Executable: req.executable(),
		Args:       req.args(span),
		Dir:        req.workDir(),
		Input:      src,
	})
	if err != nil {
		return a.fail(st, log, err)
	}

	st.to(StateStreaming)
	c := &collector{result: Result{Edits: []Edit{}}}
	perr := replacements.Parse(run.Output(), offset.NewTranslator(src, a.unit), c)
	if perr != nil {
		run.Abort()
	}
	_, werr := run.Wait()

	switch {
	case ctx.Err() != nil:
		return a.fail(st, log, ferrors.Cancelled(ctx.Err()))
	case werr != nil:
		return a.fail(st, log, werr)
	case perr != nil:
		return a.fail(st, log, perr)
	}

	st.to(StateCompleted)
	log.Debug("formatted", "edits", len(c.result.Edits), "cursor", c.result.Cursor != nil, "run", run.ID())
	if c.result.Incomplete {
		log.Warn("formatter reported incomplete formatting")
	}
	return &c.result, nil
}

func (a *Assembler) fail(st *tracker, log *slog.Logger, err error) (*Result, error) {
	switch {
	case ferrors.IsCancelled(err):
		st.to(StateCancelled)
		log.Debug("formatting cancelled")
		return nil, err
	case ferrors.IsToolNotFound(err):
		st.to(StateFailed)
		log.Info("formatter not available", "error", err)
		return &Result{}, err
	}

	st.to(StateFailed)
	var te *ferrors.ToolError
	if errors.As(err, &te) {
		log.Warn("formatter failed", "exit_code", te.ExitCode, "stderr", te.Stderr)
	} else {
		log.Warn("formatting failed", "error", err)
	}
	return nil, err
}

// collector accumulates parse events into a Result.
type collector struct {
	result Result
}

func (c *collector) OnReplacement(r replacements.Replacement) error {
	c.result.Edits = append(c.result.Edits, Edit{Start: r.Offset, End: r.End(), Text: r.Text})
	return nil
}

func (c *collector) OnCursor(cur replacements.Cursor) error {
	pos := cur.Offset
	c.result.Cursor = &pos
	return nil
}

func (c *collector) OnEnd(s replacements.Summary) error {
	c.result.Incomplete = s.Incomplete
	return nil
}
