package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/logging"
	"github.com/dshills/clangfmt/internal/metrics"
	"github.com/dshills/clangfmt/internal/watcher"
)

type watchOptions struct {
	debounce    time.Duration
	metricsAddr string
}

func newWatchCmd(global *globalOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Reformat files in place whenever they are saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			a, err := newApp(cmd, global)
			if err != nil {
				return err
			}
			defer a.Close()
			return runWatch(cmd.Context(), a, opts, args)
		},
	}

	cmd.Flags().DurationVar(&opts.debounce, "debounce", watcher.DefaultDebounce, "quiet period before a saved file is formatted")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. localhost:9464")
	return cmd
}

func runWatch(ctx context.Context, a *app, opts *watchOptions, dirs []string) error {
	w, err := watcher.New(
		watcher.WithDebounce(opts.debounce),
		watcher.WithLogger(a.logger),
		watcher.WithFilter(func(path string) bool {
			_, _, enabled := a.resolver.ForFile(path)
			return enabled
		}),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return err
		}
	}
	a.logger.Info("watching", "dirs", dirs, "languages", a.cfg.EnabledLanguages())

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if opts.metricsAddr != "" {
		exporter := metrics.NewExporter(metrics.DefaultExporterConfig())
		a.metrics = metrics.New(metrics.WithExporter(exporter))
		stop, err := serveMetrics(ctx, a, opts.metricsAddr, exporter)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx = logging.ToContext(ctx, a.logger.With("command", "watch"))
	err = w.Run(ctx, func(ctx context.Context, ev watcher.Event) {
		if err := reformat(ctx, a, w, ev.Path); err != nil {
			if ferrors.IsToolNotFound(err) {
				cancel(err)
				return
			}
			if ferrors.IsCancelled(err) {
				return
			}
			logging.FromContext(ctx).Error("format failed", "file", ev.Path, "error", err, "stderr", ferrors.Diagnostic(err))
		}
	})

	if cause := context.Cause(ctx); ferrors.IsToolNotFound(cause) {
		return cause
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveMetrics serves the exporter until the returned stop function is called.
func serveMetrics(ctx context.Context, a *app, addr string, e *metrics.Exporter) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// reformat formats path in place, telling w to ignore the resulting write.
func reformat(ctx context.Context, a *app, w *watcher.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rep, err := formatSource(ctx, a, path, string(src), nil)
	if err != nil {
		return err
	}
	if !rep.Changed {
		return nil
	}

	w.Suppress(path)
	if err := os.WriteFile(path, []byte(rep.text), info.Mode().Perm()); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("formatted", "file", path, "edits", len(rep.Edits))
	return nil
}
