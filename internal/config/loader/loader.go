// Package loader reads configuration sources into generic maps.
//
// Files are parsed as TOML or YAML depending on their extension. Maps from
// several sources are combined with DeepMerge, later sources winning, before
// being decoded into a typed configuration.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader is a configuration source.
type Loader interface {
	// Load returns the source's settings, or nil, nil if the source is absent.
	Load() (map[string]any, error)
}

// FileSystem is the subset of file operations the loaders need.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the OS file system.
func DefaultFS() FileSystem {
	return OSFS{}
}

type parseFunc func(source string, data []byte) (map[string]any, error)

// parsers maps lower-case file extensions to their parser.
var parsers = map[string]parseFunc{
	".toml": parseTOML,
	".yaml": parseYAML,
	".yml":  parseYAML,
}

// File loads one TOML or YAML file.
type File struct {
	fs    FileSystem
	path  string
	parse parseFunc
}

// NewFile returns a loader for path, choosing the format by extension.
func NewFile(fsys FileSystem, path string) (*File, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return &File{fs: fsys, path: path, parse: parse}, nil
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Load reads and parses the file. A missing file yields nil, nil.
func (f *File) Load() (map[string]any, error) {
	data, err := f.fs.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", f.path, err)
	}
	return f.parse(f.path, data)
}

// ParseError reports a syntax error in a configuration file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
