// intercept-build runs a build command under process interception and
// assembles a compilation database from the intercepted compiler calls.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"earshot/internal/collector"
	"earshot/internal/compdb"
	"earshot/internal/config"
	"earshot/internal/envpatch"
	"earshot/internal/envstate"
	"earshot/internal/eventdb"
	"earshot/internal/report"
	"earshot/internal/telemetry"
)

// Tool names shadowed by the wrapper shim.
var wrappedTools = []string{"cc", "c++", "gcc", "g++", "clang", "clang++"}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "intercept-build: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run() (int, error) {
	opts, err := config.ParseArgs(os.Args)
	if err != nil {
		return 1, err
	}
	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return 1, err
	}
	defer logger.Sync()

	workDir, err := os.MkdirTemp("", "intercept-")
	if err != nil {
		return 1, fmt.Errorf("creating working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	shimDir, wrapperBin, err := provisionShims(workDir)
	if err != nil {
		return 1, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event destination: a drop directory by default, a collector socket
	// on request.
	var (
		output  string
		dropDir string
		buf     = &collector.Buffer{}
		sock    *collector.SocketCollector
	)
	if opts.UseSocket {
		endpoint := filepath.Join(workDir, "events.sock")
		sock, err = collector.ListenSocket(endpoint, buf, logger)
		if err != nil {
			return 1, err
		}
		sock.Start(ctx)
		output = report.SocketScheme + endpoint
	} else {
		dropDir = filepath.Join(workDir, "events")
		if err := os.Mkdir(dropDir, 0o755); err != nil {
			return 1, fmt.Errorf("creating drop directory: %w", err)
		}
		output = dropDir
		if opts.Verbose {
			progress := collector.HandlerFunc(func(rec *report.Record) error {
				logger.Debug("intercepted call",
					zap.Int32("pid", rec.Pid),
					zap.String("function", rec.Function),
					zap.Strings("command", rec.Command))
				return nil
			})
			go collector.Watch(ctx, dropDir, progress, logger)
		}
	}

	exitCode := runBuild(opts, logger, buildEnvironment(opts, output, wrapperBin, shimDir))

	var records []*report.Record
	if opts.UseSocket {
		if err := sock.Close(); err != nil {
			return exitCode, err
		}
		records = buf.Records()
	} else {
		if records, err = collector.ScanDir(dropDir); err != nil {
			return exitCode, err
		}
	}
	logger.Info("build finished",
		zap.Int("exit_code", exitCode),
		zap.Int("intercepted_calls", len(records)))

	records, err = applyFilter(opts.Filter, records)
	if err != nil {
		return exitCode, err
	}
	if err := storeEvents(opts.EventDB, records, logger); err != nil {
		return exitCode, err
	}

	var entries []compdb.Entry
	for _, rec := range records {
		entries = append(entries, compdb.Entries(rec)...)
	}
	if err := compdb.Write(opts.Database, entries, opts.Append); err != nil {
		return exitCode, err
	}
	logger.Info("compilation database written",
		zap.String("path", opts.Database),
		zap.Int("entries", len(entries)))

	exportTraces(ctx, logger, opts.Build, entries)
	return exitCode, nil
}

// provisionShims creates a directory of tool-name symlinks pointing at the
// wrapper binary, expected to sit next to this executable.
func provisionShims(workDir string) (shimDir, wrapperBin string, err error) {
	self, err := os.Executable()
	if err != nil {
		return "", "", fmt.Errorf("resolving own executable: %w", err)
	}
	wrapperBin = filepath.Join(filepath.Dir(self), "intercept-wrapper")
	if _, err := os.Stat(wrapperBin); err != nil {
		return "", "", fmt.Errorf("locating wrapper shim: %w", err)
	}

	shimDir = filepath.Join(workDir, "bin")
	if err := os.Mkdir(shimDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating shim directory: %w", err)
	}
	for _, tool := range wrappedTools {
		if err := os.Symlink(wrapperBin, filepath.Join(shimDir, tool)); err != nil {
			return "", "", fmt.Errorf("linking shim for %s: %w", tool, err)
		}
	}
	return shimDir, wrapperBin, nil
}

// buildEnvironment assembles the child environment: the interception
// variables patched in, and the shim directory put ahead of PATH.
func buildEnvironment(opts *config.Options, output, wrapperBin, shimDir string) []string {
	state := &envstate.State{
		Output:  output,
		Preload: wrapperBin,
	}
	if opts.FlatMode || runtime.GOOS == "darwin" {
		state.Flat = "1"
	}
	env := envpatch.Patch(os.Environ(), state).Slice()
	if opts.Verbose {
		env = append(env, "INTERCEPT_BUILD_VERBOSE=true")
	}
	for i, entry := range env {
		if len(entry) >= 5 && entry[:5] == "PATH=" {
			env[i] = "PATH=" + shimDir + string(os.PathListSeparator) + entry[5:]
			return env
		}
	}
	return append(env, "PATH="+shimDir)
}

func runBuild(opts *config.Options, logger *zap.Logger, env []string) int {
	logger.Info("running build", zap.Strings("command", opts.Build))
	cmd := exec.Command(opts.Build[0], opts.Build[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = env
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		logger.Error("running build command", zap.Error(err))
		return 1
	}
	return 0
}

func applyFilter(expression string, records []*report.Record) ([]*report.Record, error) {
	if expression == "" {
		return records, nil
	}
	filter, err := compdb.NewFilter(expression)
	if err != nil {
		return nil, err
	}
	kept := records[:0:0]
	for _, rec := range records {
		ok, err := filter.Match(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func storeEvents(path string, records []*report.Record, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	db, err := eventdb.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	for _, rec := range records {
		if _, err := db.Insert(rec); err != nil {
			return err
		}
	}
	logger.Info("raw events stored", zap.String("path", path), zap.Int("events", len(records)))
	return nil
}

// exportTraces emits one span per compilation when an OTLP endpoint is
// configured. Export problems are logged, never fatal to the build result.
func exportTraces(ctx context.Context, logger *zap.Logger, build []string, entries []compdb.Entry) {
	cfg, err := config.ParseOTELConfig()
	if err != nil {
		logger.Warn("parsing OTEL config", zap.Error(err))
		return
	}
	if !cfg.Enabled() {
		return
	}
	tp, err := telemetry.InitProvider(ctx, cfg)
	if err != nil {
		logger.Warn("initializing trace export", zap.Error(err))
		return
	}
	telemetry.EmitCompilations(ctx, tp.Tracer("intercept-build"), build, entries)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.ShutdownProvider(shutdownCtx, tp); err != nil {
		logger.Warn("shutting down trace export", zap.Error(err))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
