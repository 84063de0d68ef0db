// Package errors defines the failure taxonomy shared by the formatting pipeline.
//
// Every failure surfaced by the pipeline unwraps to exactly one of the
// sentinel errors below, so callers classify with errors.Is:
//
//	res, err := assembler.Run(ctx, req)
//	switch {
//	case ferrors.IsToolNotFound(err):
//	    // informational, res is empty
//	case ferrors.IsCancelled(err):
//	    // not a failure for UI purposes
//	case err != nil:
//	    // FormatFailure or MalformedOutput
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the formatting pipeline.
var (
	// ErrToolNotFound indicates the formatter executable could not be located or started.
	ErrToolNotFound = errors.New("formatter not found")

	// ErrFormatFailure indicates the formatter exited non-zero or wrote diagnostics.
	ErrFormatFailure = errors.New("formatting failed")

	// ErrMalformedOutput indicates the formatter output violated the replacement protocol.
	ErrMalformedOutput = errors.New("malformed formatter output")

	// ErrCancelled indicates the operation was aborted on request.
	ErrCancelled = errors.New("formatting cancelled")

	// ErrApplyFailure indicates a resolved edit list could not be applied to a document.
	ErrApplyFailure = errors.New("edit application failed")
)

// ToolError describes a formatter run that did not succeed.
type ToolError struct {
	// Path is the executable that was run.
	Path string

	// ExitCode is the process exit code, or -1 if it never started.
	ExitCode int

	// Stderr holds the diagnostic output, if any.
	Stderr string

	// Err is ErrToolNotFound or ErrFormatFailure, optionally wrapping a cause.
	Err error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewNotFound returns a ToolError for an executable that could not be started.
func NewNotFound(path string, cause error) *ToolError {
	err := ErrToolNotFound
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrToolNotFound, cause)
	}
	return &ToolError{Path: path, ExitCode: -1, Err: err}
}

// NewFailure returns a ToolError for a run that exited with code or wrote stderr.
func NewFailure(path string, code int, stderr string) *ToolError {
	return &ToolError{Path: path, ExitCode: code, Stderr: stderr, Err: ErrFormatFailure}
}

// MalformedError describes a protocol violation in the formatter output.
type MalformedError struct {
	// Offset is the byte offset involved, or -1 when not applicable.
	Offset int

	// Reason describes the violation.
	Reason string

	// Err is an optional underlying cause (a tokenizer or number parse error).
	Err error
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	msg := ErrMalformedOutput.Error() + ": " + e.Reason
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns ErrMalformedOutput and the cause.
func (e *MalformedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedOutput}
	}
	return []error{ErrMalformedOutput, e.Err}
}

// Malformed returns a MalformedError without an offset.
func Malformed(format string, args ...any) *MalformedError {
	return &MalformedError{Offset: -1, Reason: fmt.Sprintf(format, args...)}
}

// MalformedAt returns a MalformedError for a byte offset.
func MalformedAt(offset int, format string, args ...any) *MalformedError {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// ApplyError describes an edit that could not be applied.
type ApplyError struct {
	// Index is the position of the offending edit in the list.
	Index int

	// Reason describes the problem.
	Reason string
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: edit %d: %s", ErrApplyFailure, e.Index, e.Reason)
}

// Unwrap returns ErrApplyFailure.
func (e *ApplyError) Unwrap() error {
	return ErrApplyFailure
}

// Cancelled wraps a context error so that it matches ErrCancelled.
func Cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// IsToolNotFound reports whether err is a ToolNotFound failure.
func IsToolNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}

// IsFormatFailure reports whether err is a FormatFailure.
func IsFormatFailure(err error) bool {
	return errors.Is(err, ErrFormatFailure)
}

// IsMalformed reports whether err is a MalformedOutput failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsApplyFailure reports whether err is an ApplyFailure.
func IsApplyFailure(err error) bool {
	return errors.Is(err, ErrApplyFailure)
}

// Diagnostic returns the formatter's stderr carried by err, if any.
func Diagnostic(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Stderr
	}
	return ""
}
