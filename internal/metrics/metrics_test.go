package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ferrors "github.com/dshills/clangfmt/internal/errors"
)

func TestNew(t *testing.T) {
	s := New().Snapshot()
	if s.Runs != 0 {
		t.Errorf("expected 0 runs, got %d", s.Runs)
	}
	if s.Min != 0 {
		t.Errorf("expected 0 min (sentinel handled), got %v", s.Min)
	}
	if s.FailureRate() != 0 {
		t.Errorf("expected 0 failure rate, got %v", s.FailureRate())
	}
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.Record(10*time.Millisecond, 3, nil)
	m.Record(20*time.Millisecond, 1, nil)
	m.Record(5*time.Millisecond, 0, ferrors.NewFailure("clang-format", 2, "bad style"))
	m.Record(time.Second, 0, ferrors.Cancelled(context.Canceled))
	m.Record(time.Second, 0, ferrors.NewNotFound("clang-format", nil))

	s := m.Snapshot()
	if s.Runs != 5 {
		t.Errorf("expected 5 runs, got %d", s.Runs)
	}
	if s.Completed != 2 || s.Failed != 1 || s.Cancelled != 1 || s.NotFound != 1 {
		t.Errorf("unexpected outcome counts %+v", s)
	}
	if s.Edits != 4 {
		t.Errorf("expected 4 edits, got %d", s.Edits)
	}
	if s.Min != 5*time.Millisecond {
		t.Errorf("expected min 5ms, got %v", s.Min)
	}
	if s.Max != 20*time.Millisecond {
		t.Errorf("expected max 20ms, got %v", s.Max)
	}
	if s.Avg != 35*time.Millisecond/3 {
		t.Errorf("expected avg %v, got %v", 35*time.Millisecond/3, s.Avg)
	}
}

func TestMetrics_MalformedCountsAsFailure(t *testing.T) {
	m := New()
	m.Record(time.Millisecond, 0, ferrors.Malformed("bad"))
	m.Record(time.Millisecond, 0, errors.New("read pipe"))

	s := m.Snapshot()
	if s.Failed != 2 {
		t.Errorf("expected 2 failures, got %d", s.Failed)
	}
	if s.FailureRate() != 100 {
		t.Errorf("expected 100%% failure rate, got %v", s.FailureRate())
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(time.Duration(i+1)*time.Millisecond, 1, nil)
			m.RecordChanged()
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Completed != 50 || s.Edits != 50 || s.Changed != 50 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Min != time.Millisecond || s.Max != 50*time.Millisecond {
		t.Errorf("unexpected min/max %v/%v", s.Min, s.Max)
	}
}

func TestSnapshot_LogValue(t *testing.T) {
	m := New()
	m.Record(time.Millisecond, 2, nil)

	var b strings.Builder
	slog.New(slog.NewTextHandler(&b, nil)).Info("stats", "format", m.Snapshot())
	if !strings.Contains(b.String(), "format.runs=1") || !strings.Contains(b.String(), "format.edits=2") {
		t.Errorf("unexpected log output %q", b.String())
	}
}

func TestExporter(t *testing.T) {
	e := NewExporter(DefaultExporterConfig())
	m := New(WithExporter(e))

	m.Record(10*time.Millisecond, 2, nil)
	m.Record(time.Millisecond, 0, ferrors.NewFailure("clang-format", 1, ""))
	m.Record(0, 0, ferrors.NewNotFound("clang-format", nil))
	m.RecordChanged()

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`clangfmt_runs_total{status="completed"} 1`,
		`clangfmt_runs_total{status="failed"} 1`,
		`clangfmt_runs_total{status="not_found"} 1`,
		`clangfmt_edits_total 2`,
		`clangfmt_files_changed_total 1`,
		`clangfmt_run_duration_seconds_count{status="completed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
	if strings.Contains(body, `clangfmt_run_duration_seconds_count{status="not_found"}`) {
		t.Error("not_found runs should not be timed")
	}
}
