// Package config resolves clangfmt settings into formatting requests.
//
// Settings come from, lowest precedence first: built-in defaults, the user
// config file, the project config file found by walking up from the
// formatted file, and CLANGFMT_* environment variables. Files are TOML or
// YAML. Per-language sections override the global style settings.
package config

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dshills/clangfmt/internal/format"
	"github.com/dshills/clangfmt/internal/logging"
	"github.com/dshills/clangfmt/internal/offset"
)

// Config is the resolved configuration.
type Config struct {
	// Executable is the formatter command name or path.
	Executable string `toml:"executable" yaml:"executable"`

	// Style and FallbackStyle are passed as -style and -fallback-style.
	Style         string `toml:"style" yaml:"style"`
	FallbackStyle string `toml:"fallbackStyle" yaml:"fallbackStyle"`

	// ExtraArgs are appended to every formatter invocation.
	ExtraArgs []string `toml:"extraArgs" yaml:"extraArgs"`

	// Unit is the character unit of offsets: "runes" or "utf16".
	Unit string `toml:"unit" yaml:"unit"`

	// MaxProcesses bounds concurrent formatter processes. Zero is unlimited.
	MaxProcesses int `toml:"maxProcesses" yaml:"maxProcesses"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"logLevel" yaml:"logLevel"`

	// StyleScript optionally names a Lua file defining
	// style(filename, language, default).
	StyleScript string `toml:"styleScript" yaml:"styleScript"`

	// Languages holds per-language settings keyed by language ID.
	Languages map[string]LanguageConfig `toml:"languages" yaml:"languages"`

	// Root is the directory of the project config file, if one was found.
	Root string `toml:"-" yaml:"-"`

	// Sources lists the files that were merged, lowest precedence first.
	Sources []string `toml:"-" yaml:"-"`
}

// LanguageConfig holds settings for one language.
type LanguageConfig struct {
	Enable        bool     `toml:"enable" yaml:"enable"`
	Style         string   `toml:"style,omitempty" yaml:"style,omitempty"`
	FallbackStyle string   `toml:"fallbackStyle,omitempty" yaml:"fallbackStyle,omitempty"`
	ExtraArgs     []string `toml:"extraArgs,omitempty" yaml:"extraArgs,omitempty"`
}

// DefaultLanguages lists the languages clang-format understands.
var DefaultLanguages = []string{
	"apex",
	"c",
	"cpp",
	"csharp",
	"cuda",
	"glsl",
	"hlsl",
	"java",
	"javascript",
	"json",
	"metal",
	"objective-c",
	"objective-cpp",
	"proto",
	"textproto",
	"typescript",
}

// Default returns the built-in configuration.
func Default() *Config {
	langs := make(map[string]LanguageConfig, len(DefaultLanguages))
	for _, id := range DefaultLanguages {
		langs[id] = LanguageConfig{Enable: true}
	}
	return &Config{
		Executable:    format.DefaultExecutable,
		Style:         format.DefaultStyle,
		FallbackStyle: format.DefaultFallbackStyle,
		ExtraArgs:     []string{},
		Unit:          offset.Runes.String(),
		LogLevel:      "info",
		Languages:     langs,
	}
}

// Validate checks values that cannot be validated by decoding alone.
func (c *Config) Validate() error {
	if c.Executable == "" {
		return &ValidationError{Field: "executable", Message: "must not be empty"}
	}
	if _, err := offset.ParseUnit(c.Unit); err != nil {
		return &ValidationError{Field: "unit", Message: err.Error()}
	}
	if c.MaxProcesses < 0 {
		return &ValidationError{Field: "maxProcesses", Message: fmt.Sprintf("must not be negative, got %d", c.MaxProcesses)}
	}
	for id := range c.Languages {
		if id == "" {
			return &ValidationError{Field: "languages", Message: "empty language ID"}
		}
	}
	return nil
}

// OffsetUnit returns the parsed Unit, defaulting to runes.
func (c *Config) OffsetUnit() offset.Unit {
	u, err := offset.ParseUnit(c.Unit)
	if err != nil {
		return offset.Runes
	}
	return u
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	return logging.ParseLevel(c.LogLevel)
}

// EnabledLanguages returns the sorted IDs of enabled languages.
func (c *Config) EnabledLanguages() []string {
	var ids []string
	for id, lc := range c.Languages {
		if lc.Enable {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Language returns the settings for a language ID, resolving aliases.
// Unknown languages are disabled.
func (c *Config) Language(id string) LanguageConfig {
	return c.Languages[CanonicalLanguage(id)]
}
