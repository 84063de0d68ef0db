package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dshills/clangfmt/internal/format"
)

// Resolver turns a Config into formatting requests for individual files.
// It is safe for concurrent use.
type Resolver struct {
	cfg    *Config
	vars   Vars
	script *StyleScript
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithVars sets the placeholder values. WorkspaceRoot defaults to the
// config root.
func WithVars(v Vars) ResolverOption {
	return func(r *Resolver) {
		r.vars = v
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a Resolver for cfg and loads its style script.
func NewResolver(cfg *Config, opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	if r.vars.WorkspaceRoot == "" {
		r.vars.WorkspaceRoot = cfg.Root
	}

	if cfg.StyleScript != "" {
		path := r.vars.Expand(cfg.StyleScript)
		if !filepath.IsAbs(path) && cfg.Root != "" {
			path = filepath.Join(cfg.Root, path)
		}
		script, err := LoadStyleScript(path)
		if err != nil {
			return nil, err
		}
		r.script = script
	}
	return r, nil
}

// Config returns the underlying configuration.
func (r *Resolver) Config() *Config {
	return r.cfg
}

// Close releases the style script.
func (r *Resolver) Close() {
	if r.script != nil {
		r.script.Close()
	}
}

// ForFile returns the language and its settings for filename, and whether
// formatting is enabled for it.
func (r *Resolver) ForFile(filename string) (language string, lc LanguageConfig, enabled bool) {
	language = LanguageForFile(filename)
	if language == "" {
		return "", LanguageConfig{}, false
	}
	lc = r.cfg.Language(language)
	return language, lc, lc.Enable
}

// Resolve builds the request for formatting source as filename. The file
// need not exist; filename is passed to the formatter as the assumed name.
func (r *Resolver) Resolve(filename, source string, rng *format.Range) (format.Request, error) {
	language, lc, enabled := r.ForFile(filename)
	switch {
	case language == "":
		return format.Request{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, filename)
	case !enabled:
		return format.Request{}, fmt.Errorf("%w: %s (%s)", ErrLanguageDisabled, language, filename)
	}

	style := firstNonEmpty(lc.Style, r.cfg.Style, format.DefaultStyle)
	fallback := firstNonEmpty(lc.FallbackStyle, r.cfg.FallbackStyle, format.DefaultFallbackStyle)

	if r.script != nil {
		s, err := r.script.Style(filename, language, style)
		if err != nil {
			return format.Request{}, err
		}
		if s = strings.TrimSpace(s); s != "" {
			style = s
		}
	}

	args := append(r.vars.ExpandAll(r.cfg.ExtraArgs), r.vars.ExpandAll(lc.ExtraArgs)...)

	req := format.Request{
		Source:         source,
		Range:          rng,
		Style:          r.vars.Expand(style),
		FallbackStyle:  r.vars.Expand(fallback),
		AssumeFilename: filename,
		ExtraArgs:      args,
		Executable:     r.vars.Expand(r.cfg.Executable),
	}
	if abs, err := filepath.Abs(filename); err == nil {
		req.AssumeFilename = abs
	}

	r.logger.Debug("resolved request",
		"file", req.AssumeFilename,
		"language", language,
		"style", req.Style,
		"fallback_style", req.FallbackStyle,
	)
	return req, nil
}

// firstNonEmpty returns the first value that is not blank, trimmed.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
