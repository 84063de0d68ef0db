package format

import (
	"path/filepath"
	"strconv"
)

// Defaults applied to empty Request fields.
const (
	DefaultExecutable    = "clang-format"
	DefaultStyle         = "file"
	DefaultFallbackStyle = "none"
)

// Range is a half-open character range [Start, End) of the source.
// A zero-length range is a cursor query at Start.
type Range struct {
	Start int
	End   int
}

// Len returns the number of characters in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// IsCursor reports whether the range is a zero-length cursor query.
func (r Range) IsCursor() bool {
	return r.Start == r.End
}

// Request is one fully resolved formatting request.
type Request struct {
	// Source is the text to format.
	Source string

	// Range restricts formatting to a sub-range. Nil formats the whole source.
	Range *Range

	// Style and FallbackStyle are passed to the formatter as given.
	Style         string
	FallbackStyle string

	// AssumeFilename lets the formatter infer the language and find style
	// files without reading the file itself.
	AssumeFilename string

	// ExtraArgs are appended to the formatter arguments verbatim.
	ExtraArgs []string

	// Executable is a command name or path. Empty means DefaultExecutable.
	Executable string

	// WorkDir is the formatter's working directory. Empty means the
	// directory of an absolute AssumeFilename.
	WorkDir string
}

// Edit replaces the characters [Start, End) with Text.
type Edit struct {
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
	Text  string `json:"text" yaml:"text"`
}

// Result is the outcome of a completed request.
type Result struct {
	// Edits ascend and do not overlap.
	Edits []Edit `json:"edits" yaml:"edits"`

	// Cursor is the new caret position for a cursor query, if reported.
	Cursor *int `json:"cursor,omitempty" yaml:"cursor,omitempty"`

	// Incomplete is set when the formatter could not format all of the input.
	Incomplete bool `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
}

// byteSpan is a request range converted to source bytes.
type byteSpan struct {
	offset int
	length int
}

func (r Request) executable() string {
	if r.Executable == "" {
		return DefaultExecutable
	}
	return r.Executable
}

func (r Request) workDir() string {
	if r.WorkDir != "" {
		return r.WorkDir
	}
	if r.AssumeFilename != "" && filepath.IsAbs(r.AssumeFilename) {
		return filepath.Dir(r.AssumeFilename)
	}
	return ""
}

// args returns the formatter arguments for r. span is the byte form of
// r.Range, or nil.
func (r Request) args(span *byteSpan) []string {
	style := r.Style
	if style == "" {
		style = DefaultStyle
	}
	fallback := r.FallbackStyle
	if fallback == "" {
		fallback = DefaultFallbackStyle
	}

	args := []string{
		"-output-replacements-xml",
		"-style=" + style,
		"-fallback-style=" + fallback,
	}
	if r.AssumeFilename != "" {
		args = append(args, "-assume-filename="+r.AssumeFilename)
	}
	if span != nil {
		if span.length > 0 {
			args = append(args,
				"-offset="+strconv.Itoa(span.offset),
				"-length="+strconv.Itoa(span.length),
			)
		} else {
			args = append(args, "-cursor="+strconv.Itoa(span.offset))
		}
	}
	return append(args, r.ExtraArgs...)
}
