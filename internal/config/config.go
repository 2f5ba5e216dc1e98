// Package config holds the front-end configuration: command-line options of
// intercept-build and the environment variables shared with intercepted
// processes.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// EnvConfig mirrors the interception environment variables as seen by the
// front end and the wrapper shim.
type EnvConfig struct {
	Output  string `env:"INTERCEPT_OUTPUT"`
	Preload string `env:"INTERCEPT_PRELOAD"`
	Flat    string `env:"INTERCEPT_FLAT"`
	Verbose bool   `env:"INTERCEPT_BUILD_VERBOSE" envDefault:"false"`
}

// ParseEnvConfig reads the interception variables from the environment.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing interception environment: %w", err)
	}
	return &cfg, nil
}

// Options is the parsed intercept-build command line.
type Options struct {
	// Database is the compilation database output path.
	Database string
	// Append merges entries from an existing database at the same path.
	Append bool
	// UseSocket selects the socket transport instead of file drops.
	UseSocket bool
	// EventDB, when set, stores every raw record into a SQLite database.
	EventDB string
	// Filter is an optional record filter expression.
	Filter string
	// FlatMode enables the alternate propagation mode.
	FlatMode bool
	// Verbose enables debug logging.
	Verbose bool
	// Build is the build command to run under interception.
	Build []string
}

// ParseArgs parses intercept-build's command line. Expected shape:
//
//	intercept-build [flags] -- <build command> [args...]
func ParseArgs(args []string) (*Options, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	opts := Options{}
	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.StringVarP(&opts.Database, "output", "o", "compile_commands.json", "compilation database output path")
	fs.BoolVar(&opts.Append, "append", false, "merge with an existing compilation database")
	fs.BoolVar(&opts.UseSocket, "socket", false, "collect events over a unix socket instead of file drops")
	fs.StringVar(&opts.EventDB, "event-db", "", "also store raw call records into this SQLite database")
	fs.StringVar(&opts.Filter, "filter", "", "record filter expression, e.g. 'not (directory startsWith \"/vendor\")'")
	fs.BoolVar(&opts.FlatMode, "flat", false, "enable flat propagation mode")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	opts.Build = fs.Args()
	if len(opts.Build) == 0 {
		return nil, fmt.Errorf("no build command specified\nUsage: %s [flags] -- <build command> [args...]", args[0])
	}
	return &opts, nil
}
