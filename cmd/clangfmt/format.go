package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dshills/clangfmt/internal/config"
	"github.com/dshills/clangfmt/internal/document"
	"github.com/dshills/clangfmt/internal/format"
	"github.com/dshills/clangfmt/internal/metrics"
)

// Output formats for the format command.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type formatOptions struct {
	inPlace        bool
	offset         int
	length         int
	cursor         int
	output         string
	jobs           int
	assumeFilename string
}

// report is the structured result for one input.
type report struct {
	File       string        `json:"file" yaml:"file"`
	Skipped    string        `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Edits      []format.Edit `json:"edits" yaml:"edits"`
	Cursor     *int          `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	Incomplete bool          `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
	Changed    bool          `json:"changed" yaml:"changed"`

	text string
}

func newFormatCmd(global *globalOptions) *cobra.Command {
	opts := &formatOptions{}

	cmd := &cobra.Command{
		Use:   "format [files...]",
		Short: "Format files, or standard input when no file is given",
		Example: `  clangfmt format -i src/*.cc
  clangfmt format --assume-filename main.cc < main.cc
  clangfmt format --cursor 42 --output json main.cc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(args); err != nil {
				return err
			}
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			defer a.Close()
			return runFormat(cmd.Context(), cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.inPlace, "in-place", "i", false, "rewrite files in place")
	f.IntVar(&opts.offset, "offset", -1, "start of the range to format, in characters")
	f.IntVar(&opts.length, "length", -1, "length of the range to format, in characters")
	f.IntVar(&opts.cursor, "cursor", -1, "caret position to track, in characters")
	f.StringVarP(&opts.output, "output", "o", outputText, "output: text, json or yaml")
	f.IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "files formatted concurrently")
	f.StringVar(&opts.assumeFilename, "assume-filename", "", "file name used to pick the language for standard input")
	return cmd
}

func (o *formatOptions) validate(args []string) error {
	switch o.output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("%w: unknown output %q", errUsage, o.output)
	}
	stdin := len(args) == 0 || (len(args) == 1 && args[0] == "-")
	if stdin && o.inPlace {
		return fmt.Errorf("%w: --in-place needs file arguments", errUsage)
	}
	if stdin && o.assumeFilename == "" {
		return fmt.Errorf("%w: --assume-filename is required when reading standard input", errUsage)
	}
	if o.ranged() && len(args) > 1 {
		return fmt.Errorf("%w: --offset, --length and --cursor apply to a single input", errUsage)
	}
	if o.offset >= 0 && o.cursor >= 0 {
		return fmt.Errorf("%w: --cursor cannot be combined with --offset", errUsage)
	}
	if o.cursor >= 0 && o.output == outputText {
		return fmt.Errorf("%w: --cursor reports the new caret position and needs --output json or yaml", errUsage)
	}
	if o.length >= 0 && o.offset < 0 {
		return fmt.Errorf("%w: --length needs --offset", errUsage)
	}
	if o.jobs < 1 {
		o.jobs = 1
	}
	return nil
}

func (o *formatOptions) ranged() bool {
	return o.offset >= 0 || o.length >= 0 || o.cursor >= 0
}

// formatRange returns the requested range for source, or nil for the whole
// buffer. A missing --length extends the range to the end of the source.
func (o *formatOptions) formatRange(source string, a *app) *format.Range {
	switch {
	case o.cursor >= 0:
		return &format.Range{Start: o.cursor, End: o.cursor}
	case o.offset >= 0 && o.length >= 0:
		return &format.Range{Start: o.offset, End: o.offset + o.length}
	case o.offset >= 0:
		return &format.Range{Start: o.offset, End: a.cfg.OffsetUnit().Count([]byte(source))}
	}
	return nil
}

func runFormat(ctx context.Context, cmd *cobra.Command, a *app, opts *formatOptions, args []string) error {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		src, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read standard input: %w", err)
		}
		rep, err := formatSource(ctx, a, opts.assumeFilename, string(src), opts.formatRange(string(src), a))
		if err != nil {
			return err
		}
		return writeReports(cmd.OutOrStdout(), opts.output, []*report{rep})
	}

	reports := make([]*report, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for i, path := range args {
		g.Go(func() error {
			rep, err := formatFile(gctx, a, opts, path)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if opts.inPlace && opts.output == outputText {
		return nil
	}
	return writeReports(cmd.OutOrStdout(), opts.output, reports)
}

// formatFile formats one file and rewrites it when in-place is set.
func formatFile(ctx context.Context, a *app, opts *formatOptions, path string) (*report, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := string(src)

	rep, err := formatSource(ctx, a, path, source, opts.formatRange(source, a))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if opts.inPlace && rep.Changed {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(rep.text), info.Mode().Perm()); err != nil {
			return nil, err
		}
		a.logger.Info("formatted", "file", path, "edits", len(rep.Edits))
	}
	return rep, nil
}

// formatSource runs the formatter for source and applies its edits.
// Files in unknown or disabled languages are passed through unchanged.
func formatSource(ctx context.Context, a *app, filename, source string, rng *format.Range) (*report, error) {
	rep := &report{File: filename, Edits: []format.Edit{}, text: source}

	req, err := a.resolver.Resolve(filename, source, rng)
	if err != nil {
		if errors.Is(err, config.ErrUnknownLanguage) || errors.Is(err, config.ErrLanguageDisabled) {
			a.logger.Debug("skipping file", "file", filename, "reason", err)
			rep.Skipped = err.Error()
			return rep, nil
		}
		return nil, err
	}

	timer := metrics.StartTimer()
	res, err := a.assembler.Run(ctx, req)
	if err != nil {
		a.metrics.Record(timer.Elapsed(), 0, err)
		return nil, err
	}
	a.metrics.Record(timer.Elapsed(), len(res.Edits), nil)

	text, cursor, err := document.ApplyResult(source, res, a.assembler.Unit())
	if err != nil {
		return nil, err
	}
	rep.Edits = res.Edits
	rep.Cursor = cursor
	rep.Incomplete = res.Incomplete
	rep.Changed = text != source
	rep.text = text
	if rep.Changed {
		a.metrics.RecordChanged()
	}
	return rep, nil
}

func writeReports(w io.Writer, output string, reports []*report) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		for _, r := range reports {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil

	case outputYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		for _, r := range reports {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		if err := enc.Close(); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	}

	for _, r := range reports {
		if _, err := io.WriteString(w, r.text); err != nil {
			return err
		}
	}
	return nil
}
