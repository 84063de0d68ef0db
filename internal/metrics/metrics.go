// Package metrics counts formatter runs and their latency.
package metrics

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	ferrors "github.com/dshills/clangfmt/internal/errors"
)

// Metrics tracks formatting outcomes. The zero value is not usable; call New.
// It is safe for concurrent use.
type Metrics struct {
	runs      atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	notFound  atomic.Uint64
	edits     atomic.Uint64
	changed   atomic.Uint64

	totalNs atomic.Int64
	minNs   atomic.Int64
	maxNs   atomic.Int64

	startTime time.Time
	exporter  *Exporter
}

// Option configures Metrics.
type Option func(*Metrics)

// WithExporter mirrors every recorded run to e.
func WithExporter(e *Exporter) Option {
	return func(m *Metrics) {
		m.exporter = e
	}
}

// New creates a metrics tracker.
func New(opts ...Option) *Metrics {
	m := &Metrics{startTime: time.Now()}
	m.minNs.Store(math.MaxInt64)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record records one run that took d and produced edits, or failed with err.
func (m *Metrics) Record(d time.Duration, edits int, err error) {
	m.runs.Add(1)

	status := StatusFailed
	switch {
	case err == nil:
		status = StatusCompleted
		m.completed.Add(1)
		m.edits.Add(uint64(edits))
	case ferrors.IsCancelled(err):
		status = StatusCancelled
		m.cancelled.Add(1)
	case ferrors.IsToolNotFound(err):
		status = StatusNotFound
		m.notFound.Add(1)
	default:
		m.failed.Add(1)
	}
	if m.exporter != nil {
		m.exporter.observe(status, d, edits)
	}
	if status != StatusCompleted && status != StatusFailed {
		return
	}

	ns := d.Nanoseconds()
	m.totalNs.Add(ns)
	for {
		old := m.minNs.Load()
		if ns >= old || m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordChanged counts a file whose text was rewritten.
func (m *Metrics) RecordChanged() {
	m.changed.Add(1)
	if m.exporter != nil {
		m.exporter.changed.Inc()
	}
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() Snapshot {
	completed := m.completed.Load()
	failed := m.failed.Load()

	var avg time.Duration
	if timed := completed + failed; timed > 0 {
		avg = time.Duration(m.totalNs.Load() / int64(timed))
	}
	minNs := m.minNs.Load()
	if minNs == math.MaxInt64 {
		minNs = 0
	}

	return Snapshot{
		Uptime:    time.Since(m.startTime),
		Runs:      m.runs.Load(),
		Completed: completed,
		Failed:    failed,
		Cancelled: m.cancelled.Load(),
		NotFound:  m.notFound.Load(),
		Edits:     m.edits.Load(),
		Changed:   m.changed.Load(),
		Avg:       avg,
		Min:       time.Duration(minNs),
		Max:       time.Duration(m.maxNs.Load()),
	}
}

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	Uptime    time.Duration
	Runs      uint64
	Completed uint64
	Failed    uint64
	Cancelled uint64
	NotFound  uint64
	Edits     uint64
	Changed   uint64
	Avg       time.Duration
	Min       time.Duration
	Max       time.Duration
}

// FailureRate returns the percentage of timed runs that failed.
func (s Snapshot) FailureRate() float64 {
	total := s.Completed + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(total) * 100
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("runs", s.Runs),
		slog.Uint64("completed", s.Completed),
		slog.Uint64("failed", s.Failed),
		slog.Uint64("cancelled", s.Cancelled),
		slog.Uint64("not_found", s.NotFound),
		slog.Uint64("edits", s.Edits),
		slog.Uint64("changed", s.Changed),
		slog.Duration("avg", s.Avg),
		slog.Duration("min", s.Min),
		slog.Duration("max", s.Max),
	)
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the elapsed time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
