//go:build !windows

package format

import (
	"context"
	"os"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/invoker"
	"github.com/dshills/clangfmt/internal/offset"
)

// fakeTool writes a formatter stand-in that swallows stdin, records its
// arguments next to itself and prints output.
func fakeTool(t *testing.T, output string, extra ...string) (path, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "clang-format")
	argsFile = filepath.Join(dir, "args")

	script := "#!/bin/sh\n" +
		"cat >/dev/null\n" +
		"printf '%s\\n' \"$@\" > '" + argsFile + "'\n" +
		"cat <<'XML'\n" + output + "\nXML\n" +
		strings.Join(extra, "\n") + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	return path, argsFile
}

func xmlDoc(body string) string {
	return "<?xml version='1.0'?>\n<replacements xml:space='preserve' incomplete_format='false'>\n" +
		body + "\n</replacements>"
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) hook(_, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func (l *stateLog) last() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return StateIdle
	}
	return l.states[len(l.states)-1]
}

func readArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	b, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.states)
}

func newAssembler(states *stateLog, opts ...Option) *Assembler {
	if states != nil {
		opts = append(opts, WithStateHook(states.hook))
	}
	return NewAssembler(invoker.New(), opts...)
}

func TestAssembler_MultiByteInsertion(t *testing.T) {
	tool, _ := fakeTool(t, xmlDoc("<replacement offset='3' length='0'>!</replacement>"))
	states := &stateLog{}

	res, err := newAssembler(states).Run(context.Background(), Request{Source: "héllo", Executable: tool})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := []Edit{{Start: 2, End: 2, Text: "!"}}; !slices.Equal(res.Edits, want) {
		t.Errorf("Edits = %+v, want %+v", res.Edits, want)
	}
	if res.Cursor != nil {
		t.Errorf("expected no cursor, got %d", *res.Cursor)
	}
	if want := []State{StateSpawned, StateStreaming, StateCompleted}; !slices.Equal(states.all(), want) {
		t.Errorf("states = %v, want %v", states.all(), want)
	}
}

func TestAssembler_EmptyStream(t *testing.T) {
	tool, _ := fakeTool(t, xmlDoc(""))

	res, err := newAssembler(nil).Run(context.Background(), Request{Source: "int x;\n", Executable: tool})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Edits == nil || len(res.Edits) != 0 {
		t.Errorf("expected empty non-nil edits, got %#v", res.Edits)
	}
	if res.Cursor != nil || res.Incomplete {
		t.Errorf("expected no cursor and complete result, got %+v", res)
	}
}

func TestAssembler_WholeBufferReplacement(t *testing.T) {
	src := "int  main( ){}"
	tool, _ := fakeTool(t, xmlDoc("<replacement offset='0' length='14'>int main() {}&#10;</replacement>"))

	res, err := newAssembler(nil).Run(context.Background(), Request{Source: src, Executable: tool})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := []Edit{{Start: 0, End: 14, Text: "int main() {}\n"}}; !slices.Equal(res.Edits, want) {
		t.Errorf("Edits = %+v, want %+v", res.Edits, want)
	}
}

func TestAssembler_AscendingEdits(t *testing.T) {
	src := "ünï  cödé ;  x"
	tool, _ := fakeTool(t, xmlDoc(
		"<replacement offset='5' length='2'> </replacement>\n"+
			"<replacement offset='13' length='1'></replacement>\n"+
			"<replacement offset='15' length='2'> </replacement>"))

	res, err := newAssembler(nil).Run(context.Background(), Request{Source: src, Executable: tool})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []Edit{
		{Start: 3, End: 5, Text: " "},
		{Start: 9, End: 10, Text: ""},
		{Start: 11, End: 13, Text: " "},
	}
	if !slices.Equal(res.Edits, want) {
		t.Errorf("Edits = %+v, want %+v", res.Edits, want)
	}
}

func TestAssembler_UTF16Unit(t *testing.T) {
	// U+1F600 is 4 bytes and 2 UTF-16 units.
	tool, _ := fakeTool(t, xmlDoc("<replacement offset='5' length='1'>\t</replacement>"))

	res, err := newAssembler(nil, WithUnit(offset.UTF16)).Run(context.Background(), Request{Source: "a\U0001F600 b", Executable: tool})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := []Edit{{Start: 3, End: 4, Text: "\t"}}; !slices.Equal(res.Edits, want) {
		t.Errorf("Edits = %+v, want %+v", res.Edits, want)
	}
}

func TestAssembler_CursorQuery(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		char       int
		cursorByte string
		output     string
		wantEdits  []Edit
	}{
		{
			name: "ascii", src: "int main(){return 0;}", char: 10, cursorByte: "10",
			output:    "<cursor>10</cursor>\n<replacement offset='11' length='0'> </replacement>",
			wantEdits: []Edit{{Start: 11, End: 11, Text: " "}},
		},
		{
			// Character 10 ("d") is byte 12.
			name: "multi-byte", src: "héllo wörld", char: 10, cursorByte: "12",
			output:    "<cursor>12</cursor>",
			wantEdits: []Edit{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, argsFile := fakeTool(t, xmlDoc(tt.output))

			res, err := newAssembler(nil).Run(context.Background(), Request{
				Source:     tt.src,
				Range:      &Range{Start: tt.char, End: tt.char},
				Executable: tool,
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.Cursor == nil || *res.Cursor != tt.char {
				t.Errorf("Cursor = %v, want %d", res.Cursor, tt.char)
			}
			if !slices.Equal(res.Edits, tt.wantEdits) {
				t.Errorf("Edits = %+v, want %+v", res.Edits, tt.wantEdits)
			}

			args := readArgs(t, argsFile)
			if !slices.Contains(args, "-cursor="+tt.cursorByte) {
				t.Errorf("args %q missing -cursor=%s", args, tt.cursorByte)
			}
			for _, a := range args {
				if strings.HasPrefix(a, "-length=") || strings.HasPrefix(a, "-offset=") {
					t.Errorf("zero-length range should not pass %s", a)
				}
			}
		})
	}
}

func TestAssembler_RangeArguments(t *testing.T) {
	src := "é = 1;\nint  y;\n"
	tool, argsFile := fakeTool(t, xmlDoc("<replacement offset='11' length='2'> </replacement>"))

	res, err := newAssembler(nil).Run(context.Background(), Request{
		Source:         src,
		Range:          &Range{Start: 7, End: 15},
		Executable:     tool,
		Style:          "LLVM",
		AssumeFilename: "/work/a.cc",
		WorkDir:        t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if want := []Edit{{Start: 10, End: 12, Text: " "}}; !slices.Equal(res.Edits, want) {
		t.Errorf("Edits = %+v, want %+v", res.Edits, want)
	}

	want := []string{
		"-output-replacements-xml",
		"-style=LLVM",
		"-fallback-style=none",
		"-assume-filename=/work/a.cc",
		"-offset=8",
		"-length=8",
	}
	if args := readArgs(t, argsFile); !slices.Equal(args, want) {
		t.Errorf("args = %q, want %q", args, want)
	}
}

func TestAssembler_InvalidRange(t *testing.T) {
	states := &stateLog{}
	_, err := newAssembler(states).Run(context.Background(), Request{
		Source:     "abc",
		Range:      &Range{Start: 2, End: 9},
		Executable: "clang-format",
	})
	if !errors.Is(err, offset.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if states.last() != StateFailed {
		t.Errorf("final state = %v, want %v", states.last(), StateFailed)
	}
}

func TestAssembler_FormatFailure(t *testing.T) {
	tool, _ := fakeTool(t, "", "echo \"<stdin>:1:5: error: expected ';'\" >&2", "exit 2")
	states := &stateLog{}

	res, err := newAssembler(states).Run(context.Background(), Request{Source: "int x", Executable: tool})
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if !ferrors.IsFormatFailure(err) {
		t.Fatalf("expected FormatFailure, got %v", err)
	}
	if d := ferrors.Diagnostic(err); !strings.Contains(d, "expected ';'") {
		t.Errorf("Diagnostic = %q, want the tool's stderr", d)
	}
	if states.last() != StateFailed {
		t.Errorf("final state = %v, want %v", states.last(), StateFailed)
	}
}

func TestAssembler_ExitCodeDiscardsEdits(t *testing.T) {
	// Valid replacements followed by a non-zero exit still fail.
	tool, _ := fakeTool(t, xmlDoc("<replacement offset='0' length='0'>x</replacement>"), "exit 1")

	res, err := newAssembler(nil).Run(context.Background(), Request{Source: "abc", Executable: tool})
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if !ferrors.IsFormatFailure(err) {
		t.Errorf("expected FormatFailure, got %v", err)
	}
}

func TestAssembler_ToolNotFound(t *testing.T) {
	states := &stateLog{}
	res, err := newAssembler(states).Run(context.Background(), Request{
		Source:     "int x;",
		Executable: filepath.Join(t.TempDir(), "clang-format"),
	})
	if !ferrors.IsToolNotFound(err) {
		t.Fatalf("expected ToolNotFound, got %v", err)
	}
	if res == nil || len(res.Edits) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if states.last() != StateFailed {
		t.Errorf("final state = %v, want %v", states.last(), StateFailed)
	}
}

func TestAssembler_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"unexpected element", xmlDoc("<edit offset='0' length='0'>x</edit>")},
		{"bad attribute", xmlDoc("<replacement offset='x' length='0'>x</replacement>")},
		{"offset beyond source", xmlDoc("<replacement offset='400' length='0'>x</replacement>")},
		{"offset inside a character", xmlDoc("<replacement offset='2' length='0'>x</replacement>")},
		{"partial edits discarded", xmlDoc("<replacement offset='0' length='0'>x</replacement><bogus/>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, _ := fakeTool(t, tt.output)
			res, err := newAssembler(nil).Run(context.Background(), Request{Source: "hé x;", Executable: tool})
			if res != nil {
				t.Errorf("expected nil result, got %+v", res)
			}
			if !ferrors.IsMalformed(err) {
				t.Errorf("expected MalformedOutput, got %v", err)
			}
		})
	}
}

func TestAssembler_Cancel(t *testing.T) {
	// Emits one replacement, then hangs.
	partial := "<?xml version='1.0'?>\n<replacements xml:space='preserve' incomplete_format='false'>\n" +
		"<replacement offset='0' length='0'>x</replacement>"
	tool, _ := fakeTool(t, partial, "exec sleep 30")
	states := &stateLog{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		res *Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := newAssembler(states).Run(ctx, Request{Source: "int x;", Executable: tool})
		done <- result{res, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for states.last() != StateStreaming {
		if time.Now().After(deadline) {
			t.Fatal("run never started streaming")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case r := <-done:
		if !ferrors.IsCancelled(r.err) {
			t.Errorf("expected Cancelled, got %v", r.err)
		}
		if r.res != nil {
			t.Errorf("expected nil result, got %+v", r.res)
		}
		if states.last() != StateCancelled {
			t.Errorf("final state = %v, want %v", states.last(), StateCancelled)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAssembler_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	states := &stateLog{}
	res, err := newAssembler(states).Run(ctx, Request{Source: "x", Executable: "clang-format"})
	if !ferrors.IsCancelled(err) {
		t.Errorf("expected Cancelled, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if want := []State{StateSpawned, StateCancelled}; !slices.Equal(states.all(), want) {
		t.Errorf("states = %v, want %v", states.all(), want)
	}
}

func TestAssembler_Incomplete(t *testing.T) {
	tool, _ := fakeTool(t, "<replacements xml:space='preserve' incomplete_format='true'>\n</replacements>")

	res, err := newAssembler(nil).Run(context.Background(), Request{Source: "int x = {", Executable: tool})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Incomplete {
		t.Error("expected Incomplete")
	}
}

func TestAssembler_Concurrent(t *testing.T) {
	tool, _ := fakeTool(t, xmlDoc("<replacement offset='1' length='0'>,</replacement>"))
	a := newAssembler(nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := a.Run(context.Background(), Request{Source: "ab", Executable: tool})
			if err != nil {
				t.Errorf("Run failed: %v", err)
				return
			}
			if len(res.Edits) != 1 {
				t.Errorf("expected 1 edit, got %d", len(res.Edits))
			}
		}()
	}
	wg.Wait()
}
