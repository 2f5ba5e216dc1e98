// intercept-wrapper is the interposition shim injected ahead of tool names
// on PATH. Invoked under a compiler's name, it reports the invocation
// through the hook layer and forwards to the real tool, which it resolves
// on PATH while skipping its own directory. When the interception
// environment is missing or incomplete it forwards silently, changing
// nothing about the build.
package main

import (
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"earshot/internal/envstate"
	"earshot/internal/interpose"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	state, err := envstate.Capture(runtime.GOOS == "darwin")
	if err != nil {
		logger.Fatal("capturing interception environment", zap.Error(err))
	}

	self, err := os.Executable()
	if err != nil {
		logger.Fatal("resolving own executable", zap.Error(err))
	}

	// The invoked name is the tool this shim impersonates.
	name := filepath.Base(os.Args[0])
	real, err := interpose.LookPathExcluding(name, filepath.Dir(self))
	if err != nil {
		logger.Fatal("resolving real tool", zap.String("tool", name), zap.Error(err))
	}

	ip := interpose.New(state, interpose.WithLogger(logger))
	if err := ip.Execve(real, os.Args, os.Environ()); err != nil {
		// Exec only returns on failure; surface it like a failed tool.
		logger.Error("forwarding to real tool", zap.String("tool", real), zap.Error(err))
		os.Exit(127)
	}
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if os.Getenv("INTERCEPT_BUILD_VERBOSE") == "true" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		// No logger to report with; nothing observable should change for
		// the build, so fall back to a no-op.
		return zap.NewNop()
	}
	return logger
}
