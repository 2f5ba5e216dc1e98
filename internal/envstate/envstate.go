// Package envstate captures, validates, and restores the interception
// configuration carried in the process environment.
//
// The three variables are duplicated into a State at load time; the library
// never holds references into the live environment, since the host process
// may mutate or free that memory at any point. An empty value is treated as
// absent.
package envstate

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Environment variable names read at load time and re-propagated to every
// child process.
const (
	OutputVar  = "INTERCEPT_OUTPUT"
	PreloadVar = "INTERCEPT_PRELOAD"
	FlatVar    = "INTERCEPT_FLAT"
)

var validate = validator.New()

// State is the per-process interception configuration, immutable after
// capture.
type State struct {
	// Output is the event destination: a drop directory, or a unix socket
	// endpoint prefixed with "unix://".
	Output string `env:"INTERCEPT_OUTPUT" validate:"required"`
	// Preload is the path of the interposition shim, re-propagated so
	// nested builds are intercepted too.
	Preload string `env:"INTERCEPT_PRELOAD" validate:"required"`
	// Flat is the alternate propagation mode flag, required only when the
	// build enables flat mode.
	Flat string `env:"INTERCEPT_FLAT" validate:"required_if=FlatRequired true"`

	// FlatRequired marks whether this build mode mandates the Flat value.
	// Not an environment variable; only steers validation.
	FlatRequired bool `validate:"-"`
}

// Capture duplicates the configuration variables out of the current process
// environment. Absent variables are left empty; validity is judged
// separately by Valid.
func Capture(requireFlat bool) (*State, error) {
	s := State{FlatRequired: requireFlat}
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("capturing interception environment: %w", err)
	}
	return &s, nil
}

// Valid reports whether every variable required by the current build mode
// is present. An invalid state disables interception for the remainder of
// the process's life.
func (s *State) Valid() bool {
	return s != nil && validate.Struct(s) == nil
}

// Restore writes the captured configuration back into the live process
// environment, setting present fields and unsetting absent ones. Used by
// PATH-searching call variants which need the real interception environment
// active in-process for the duration of the search.
func (s *State) Restore() error {
	fields := []struct {
		key   string
		value string
	}{
		{OutputVar, s.Output},
		{PreloadVar, s.Preload},
		{FlatVar, s.Flat},
	}
	for _, f := range fields {
		var err error
		if f.value != "" {
			err = os.Setenv(f.key, f.value)
		} else {
			err = os.Unsetenv(f.key)
		}
		if err != nil {
			return fmt.Errorf("restoring %s: %w", f.key, err)
		}
	}
	return nil
}

// Pairs returns the configured key/value pairs in a fixed order, skipping
// absent fields. This is the set the Environment Patcher guarantees on
// every child's environment.
func (s *State) Pairs() [][2]string {
	var pairs [][2]string
	if s.Preload != "" {
		pairs = append(pairs, [2]string{PreloadVar, s.Preload})
	}
	if s.Output != "" {
		pairs = append(pairs, [2]string{OutputVar, s.Output})
	}
	if s.Flat != "" {
		pairs = append(pairs, [2]string{FlatVar, s.Flat})
	}
	return pairs
}
