// Package watcher reports saved source files for format-on-save.
//
// A Watcher registers directory trees with fsnotify, drops events for
// hidden and vendored paths, coalesces bursts of events on the same path,
// and delivers one Event per path to a handler once the path has been quiet
// for the debounce delay.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Errors returned by the watcher.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// String returns a human-readable representation of the operation set.
func (op Op) String() string {
	var parts []string
	for _, o := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}} {
		if op.Has(o.op) {
			parts = append(parts, o.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a debounced change to one file.
type Event struct {
	// Path is the absolute path of the file.
	Path string

	// Op is every operation seen on the path during the debounce window.
	Op Op

	// Timestamp is the time of the last underlying event.
	Timestamp time.Time
}

// Handler is called once per debounced event. Calls are serialized.
type Handler func(ctx context.Context, ev Event)

// Filter reports whether a file path is of interest.
type Filter func(path string) bool

// DefaultDebounce is the quiet period before an event is delivered.
const DefaultDebounce = 100 * time.Millisecond

// DefaultSuppressWindow is how long a Suppress call swallows events.
const DefaultSuppressWindow = 2 * time.Second

// DefaultIgnoreDirs are directory names never descended into.
var DefaultIgnoreDirs = []string{"vendor", "node_modules", "third_party", "build"}

// Config holds watcher configuration options.
type Config struct {
	// Debounce is the quiet period before an event is delivered.
	Debounce time.Duration

	// SuppressWindow bounds how long Suppress swallows events for a path.
	SuppressWindow time.Duration

	// IgnoreHidden ignores files and directories starting with a dot.
	IgnoreHidden bool

	// IgnoreDirs are directory base names skipped during registration and
	// event delivery.
	IgnoreDirs []string

	// Ops selects which operations reach the handler.
	Ops Op

	// Filter, when set, must accept a file path for its events to be delivered.
	Filter Filter

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:       DefaultDebounce,
		SuppressWindow: DefaultSuppressWindow,
		IgnoreHidden:   true,
		IgnoreDirs:     slices.Clone(DefaultIgnoreDirs),
		Ops:            OpCreate | OpWrite,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		c.Debounce = d
	}
}

// WithSuppressWindow sets how long Suppress swallows events.
func WithSuppressWindow(d time.Duration) Option {
	return func(c *Config) {
		c.SuppressWindow = d
	}
}

// WithIgnoreDirs replaces the ignored directory names.
func WithIgnoreDirs(names ...string) Option {
	return func(c *Config) {
		c.IgnoreDirs = names
	}
}

// WithIgnoreHidden toggles ignoring dot files and directories.
func WithIgnoreHidden(ignore bool) Option {
	return func(c *Config) {
		c.IgnoreHidden = ignore
	}
}

// WithOps selects the operations delivered to the handler.
func WithOps(ops Op) Option {
	return func(c *Config) {
		c.Ops = ops
	}
}

// WithFilter sets the file filter.
func WithFilter(f Filter) Option {
	return func(c *Config) {
		c.Filter = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// Watcher delivers debounced file events to a handler.
//
// Watcher is safe for concurrent use. Run may be called at most once.
type Watcher struct {
	fsw    *fsnotify.Watcher
	config Config
	logger *slog.Logger

	mu         sync.Mutex
	paths      map[string]bool
	pending    map[string]*pendingEvent
	suppressed map[string]time.Time
	closed     bool

	fire    chan string
	closeCh chan struct{}
}

// New creates a watcher. No directories are watched until Add is called.
func New(opts ...Option) (*Watcher, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsw:        fsw,
		config:     cfg,
		logger:     logger.With("component", "watcher"),
		paths:      make(map[string]bool),
		pending:    make(map[string]*pendingEvent),
		suppressed: make(map[string]time.Time),
		fire:       make(chan string, 64),
		closeCh:    make(chan struct{}),
	}, nil
}

// Add watches path. A directory is registered together with every
// subdirectory that is not ignored; a file is watched on its own.
func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.IsDir() {
		return w.watch(absPath)
	}

	return filepath.WalkDir(absPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != absPath && w.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		err = w.watch(p)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyWatching):
		case errors.Is(err, ErrWatcherClosed), p == absPath:
			return err
		default:
			w.logger.Warn("watch directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[path] {
		return ErrAlreadyWatching
	}
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	w.paths[path] = true
	return nil
}

// IsWatching returns true if the path is being watched.
func (w *Watcher) IsWatching(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[absPath]
}

// WatchedPaths returns all watched paths in sorted order.
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.paths))
	for p := range w.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Suppress swallows the next delivered event for path, provided it arrives
// within the suppress window. Call it before writing a file the handler
// itself produces.
func (w *Watcher) Suppress(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.suppressed[absPath] = time.Now().Add(w.config.SuppressWindow)
	w.mu.Unlock()
}

// Pending returns the number of events waiting out their debounce delay.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run delivers events to h until ctx is done or the watcher is closed.
// It returns ctx.Err() or nil after Close.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.closeCh:
			return nil

		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(fsEvent)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case path := <-w.fire:
			if ev, ok := w.take(path); ok {
				w.logger.Debug("file changed", "path", ev.Path, "op", ev.Op.String())
				h(ctx, ev)
			}
		}
	}
}

// Close stops the watcher and cancels pending events.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

func (w *Watcher) handleFSEvent(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 {
		return
	}

	path := fsEvent.Name
	if w.ignoredPath(path) {
		return
	}

	if op.Has(OpCreate) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.ignoredDir(info.Name()) {
				return
			}
			if err := w.Add(path); err != nil {
				w.logger.Warn("watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	if op&w.config.Ops == 0 {
		return
	}
	if w.config.Filter != nil && !w.config.Filter(path) {
		return
	}

	w.schedule(Event{Path: path, Op: op, Timestamp: time.Now()})
}

// schedule records ev and (re)starts the path's debounce timer.
func (w *Watcher) schedule(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if p, exists := w.pending[ev.Path]; exists {
		p.event.Op |= ev.Op
		p.event.Timestamp = ev.Timestamp
		p.timer.Reset(w.config.Debounce)
		return
	}

	path := ev.Path
	w.pending[path] = &pendingEvent{
		event: ev,
		timer: time.AfterFunc(w.config.Debounce, func() {
			select {
			case w.fire <- path:
			case <-w.closeCh:
			}
		}),
	}
}

// take removes the pending event for path. ok is false when the event was
// suppressed or already taken.
func (w *Watcher) take(path string) (Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, exists := w.pending[path]
	if !exists {
		return Event{}, false
	}
	delete(w.pending, path)

	if until, ok := w.suppressed[path]; ok {
		delete(w.suppressed, path)
		if p.event.Timestamp.Before(until) {
			w.logger.Debug("suppressed self write", "path", path)
			return Event{}, false
		}
	}
	return p.event, true
}

func (w *Watcher) ignoredDir(name string) bool {
	if w.config.IgnoreHidden && strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	return slices.Contains(w.config.IgnoreDirs, name)
}

// ignoredPath drops dot files. Ignored directories are never registered,
// so their contents produce no events.
func (w *Watcher) ignoredPath(path string) bool {
	return w.config.IgnoreHidden && strings.HasPrefix(filepath.Base(path), ".")
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}
