// Package binpath locates formatter executables on the search path.
package binpath

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Resolver maps logical executable names to paths and remembers the answer
// for the lifetime of the process.
//
// Entries are written at most once per name with LoadOrStore; a concurrent
// resolution of the same name produces the same value, so whichever write
// wins is correct. Entries are never invalidated.
type Resolver struct {
	cache sync.Map // string -> string

	goos     string
	stat     func(string) (os.FileInfo, error)
	lookPath func(string) (string, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookPath replaces the search-path lookup, mainly for tests.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Resolver) {
		r.lookPath = fn
	}
}

// WithStat replaces the file existence check, mainly for tests.
func WithStat(fn func(string) (os.FileInfo, error)) Option {
	return func(r *Resolver) {
		r.stat = fn
	}
}

// WithGOOS overrides the target operating system used for name correction.
func WithGOOS(goos string) Option {
	return func(r *Resolver) {
		r.goos = goos
	}
}

// NewResolver creates a resolver. Create one per process and share it.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		goos:     runtime.GOOS,
		stat:     os.Stat,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the path to run for name.
//
// A name containing a directory is made absolute when the file exists. A
// bare name is looked up on the search path. If nothing is found the
// corrected name is returned unchanged, so the failure surfaces when the
// formatter is started.
func (r *Resolver) Resolve(name string) string {
	name = r.correct(name)

	if v, ok := r.cache.Load(name); ok {
		return v.(string)
	}

	resolved := r.resolve(name)
	v, _ := r.cache.LoadOrStore(name, resolved)
	return v.(string)
}

// Cached reports the cached value for name, if any.
func (r *Resolver) Cached(name string) (string, bool) {
	v, ok := r.cache.Load(r.correct(name))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (r *Resolver) resolve(name string) string {
	if hasDir(name) {
		if info, err := r.stat(name); err == nil && !info.IsDir() {
			if abs, err := filepath.Abs(name); err == nil {
				return abs
			}
		}
		return name
	}

	if p, err := r.lookPath(name); err == nil {
		return p
	}
	return name
}

// hasDir reports whether name is a path rather than a bare command name.
// Bare names are never resolved against the working directory.
func hasDir(name string) bool {
	return strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator)
}

// correct appends .exe on Windows.
func (r *Resolver) correct(name string) string {
	if r.goos != "windows" {
		return name
	}
	if strings.EqualFold(filepath.Ext(name), ".exe") {
		return name
	}
	return name + ".exe"
}
