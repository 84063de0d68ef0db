package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/clangfmt/internal/config"
	"github.com/dshills/clangfmt/internal/config/loader"
	"github.com/dshills/clangfmt/internal/format"
	"github.com/dshills/clangfmt/internal/invoker"
	"github.com/dshills/clangfmt/internal/logging"
	"github.com/dshills/clangfmt/internal/metrics"
	"github.com/dshills/clangfmt/internal/process"
)

// errUsage marks invalid flag combinations.
var errUsage = errors.New("usage")

// shutdownTimeout bounds how long running formatters get to exit.
const shutdownTimeout = 2 * time.Second

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile    string
	logLevel      string
	logFormat     string
	executable    string
	style         string
	fallbackStyle string
	unit          string
	noUserConfig  bool
	stats         bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "clangfmt",
		Short: "Format source files with clang-format",
		Long: `clangfmt runs clang-format on source files and applies its replacements.

Settings come from built-in defaults, the user config file, the nearest
.clangfmt.toml or .clangfmt.yaml, CLANGFMT_* environment variables and
finally the command line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "path to a config file (disables discovery)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "auto", "log format: text, json, or auto (text on a terminal)")
	pf.StringVar(&opts.executable, "executable", "", "clang-format executable")
	pf.StringVar(&opts.style, "style", "", "formatting style passed to -style")
	pf.StringVar(&opts.fallbackStyle, "fallback-style", "", "style used when no .clang-format file is found")
	pf.StringVar(&opts.unit, "unit", "", "offset unit for ranges and edits: runes or utf16")
	pf.BoolVar(&opts.noUserConfig, "no-user-config", false, "ignore the per-user config file")
	pf.BoolVar(&opts.stats, "stats", false, "log a summary of formatter runs on exit")

	root.AddCommand(
		newFormatCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// app holds the components a subcommand formats with.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	resolver  *config.Resolver
	invoker   *invoker.Invoker
	assembler *format.Assembler
	metrics   *metrics.Metrics
	stats     bool
}

// newApp loads the configuration and wires the formatting pipeline.
func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	lookup, err := envLookup(filepath.Join(cwd, ".env"))
	if err != nil {
		return nil, err
	}
	loadOpts := config.Options{
		File: opts.configFile,
		Dir:  cwd,
		Env:  loader.NewEnvLoader().WithLookup(lookup),
	}
	if !opts.noUserConfig {
		loadOpts.UserDir = config.DefaultUserDir()
	}
	cfg, err := config.Load(loadOpts)
	if err != nil {
		return nil, err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Level()
	logCfg.Format = logFormat(opts.logFormat, cmd.ErrOrStderr())
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.New(logCfg)
	logger.Debug("configuration loaded", "sources", cfg.Sources, "root", cfg.Root)

	resolver, err := config.NewResolver(cfg,
		config.WithVars(config.Vars{WorkspaceRoot: cfg.Root, Cwd: cwd}),
		config.WithResolverLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	iv := invoker.New(
		invoker.WithSupervisor(process.NewSupervisor(process.WithMaxProcesses(cfg.MaxProcesses))),
		invoker.WithLogger(logger),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		invoker:   iv,
		assembler: format.NewAssembler(iv, format.WithUnit(cfg.OffsetUnit()), format.WithLogger(logger)),
		metrics:   metrics.New(),
		stats:     opts.stats,
	}, nil
}

// Close stops running formatters and releases the style script.
func (a *app) Close() {
	a.invoker.Shutdown(shutdownTimeout)
	a.resolver.Close()
	if a.stats {
		a.logger.Info("summary", "format", a.metrics.Snapshot())
	}
}

// apply overrides cfg with the flags set on the command line.
func (o *globalOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("executable") {
		cfg.Executable = o.executable
	}
	if flags.Changed("style") {
		cfg.Style = o.style
	}
	if flags.Changed("fallback-style") {
		cfg.FallbackStyle = o.fallbackStyle
	}
	if flags.Changed("unit") {
		cfg.Unit = o.unit
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

// envLookup returns a lookup that prefers the process environment and
// falls back to the variables in dotenv, when that file exists.
func envLookup(dotenv string) (func(string) (string, bool), error) {
	vars, err := godotenv.Read(dotenv)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("read %s: %w", dotenv, err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// logFormat resolves "auto" to text for terminals and json otherwise.
func logFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text"
	}
	return "json"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clangfmt %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
