package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/clangfmt/internal/config/loader"
)

// ProjectFiles are the project config names searched for, in order.
var ProjectFiles = []string{".clangfmt.toml", ".clangfmt.yaml", ".clangfmt.yml"}

// UserFiles are the config names looked for in the user config directory.
var UserFiles = []string{"config.toml", "config.yaml", "config.yml"}

// maxIncludeDepth bounds nested @include directives.
const maxIncludeDepth = 8

// Options selects the sources Load merges.
type Options struct {
	// File is an explicit config file. It must exist and disables
	// project discovery.
	File string

	// Dir is where project discovery starts. Empty skips discovery.
	Dir string

	// UserDir is the directory holding the user config. Empty skips it.
	UserDir string

	// Env supplies environment overrides. Nil skips them.
	Env loader.Loader

	// FS is the file system to read from. Defaults to the OS.
	FS loader.FileSystem
}

// DefaultUserDir returns the per-user config directory, or "" if unknown.
func DefaultUserDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "clangfmt")
}

// Load merges defaults, the user file, the project file and the
// environment into a validated Config.
func Load(opts Options) (*Config, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = loader.DefaultFS()
	}

	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	var sources []string
	var root string

	if opts.UserDir != "" {
		if path := findFile(fsys, opts.UserDir, UserFiles); path != "" {
			m, err := loader.LoadWithIncludes(fsys, path, maxIncludeDepth)
			if err != nil {
				return nil, err
			}
			merged = loader.DeepMerge(merged, m)
			sources = append(sources, path)
		}
	}

	project := opts.File
	if project != "" {
		if _, err := fsys.Stat(project); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, project)
			}
			return nil, fmt.Errorf("stat config %s: %w", project, err)
		}
	} else if opts.Dir != "" {
		project = Discover(fsys, opts.Dir)
	}
	if project != "" {
		m, err := loader.LoadWithIncludes(fsys, project, maxIncludeDepth)
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, m)
		sources = append(sources, project)
		if abs, err := filepath.Abs(filepath.Dir(project)); err == nil {
			root = abs
		}
	}

	if opts.Env != nil {
		m, err := opts.Env.Load()
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		merged = loader.DeepMerge(merged, m)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	cfg.Sources = sources

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover walks up from dir and returns the first project config file
// found, or "".
func Discover(fsys loader.FileSystem, dir string) string {
	if fsys == nil {
		fsys = loader.DefaultFS()
	}
	dir = filepath.Clean(dir)
	for {
		if path := findFile(fsys, dir, ProjectFiles); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func findFile(fsys loader.FileSystem, dir string, names []string) string {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if info, err := fsys.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// toMap converts cfg into the generic form the loaders produce.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding defaults: %w", err)
	}
	return m, nil
}

// fromMap decodes a merged map into a Config, rejecting unknown keys.
func fromMap(m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, &ValidationError{Field: "config", Message: "unknown setting: " + strict.String()}
		}
		return nil, &ValidationError{Field: "config", Message: err.Error()}
	}
	return &cfg, nil
}
