package interpose

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"earshot/internal/envpatch"
	"earshot/internal/envstate"
	"earshot/internal/report"
	"earshot/internal/strarray"
)

// Interposer carries the per-process interception state shared by every
// hook: the captured environment configuration, the selected reporter, and
// the handle to the real implementation.
type Interposer struct {
	state    *envstate.State // nil when the load-time environment was invalid
	reporter report.Reporter
	next     NextExec
	log      *zap.Logger

	// reported suppresses duplicate records when one logical exec attempt
	// is observed through more than one entry point. The original design
	// used an unsynchronized flag; this one is atomic, see DESIGN.md.
	reported atomic.Bool
}

// Option configures an Interposer.
type Option func(*Interposer)

// WithNext replaces the real-implementation handle.
func WithNext(next NextExec) Option {
	return func(ip *Interposer) { ip.next = next }
}

// WithReporter replaces the transport selected from the environment state.
func WithReporter(r report.Reporter) Option {
	return func(ip *Interposer) { ip.reporter = r }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *zap.Logger) Option {
	return func(ip *Interposer) { ip.log = log }
}

// New builds an Interposer from the captured environment state. An invalid
// state produces a dormant instance: every hook forwards unmodified and
// reports nothing for the remainder of the process's life.
func New(state *envstate.State, opts ...Option) *Interposer {
	ip := &Interposer{
		next: sysExec{},
		log:  zap.NewNop(),
	}
	if state.Valid() {
		ip.state = state
		ip.reporter = report.New(state.Output)
	}
	for _, opt := range opts {
		opt(ip)
	}
	return ip
}

// Dormant reports whether interception is disabled for this process.
func (ip *Interposer) Dormant() bool {
	return ip.state == nil
}

// Execve reports the call and forwards it with a patched environment.
func (ip *Interposer) Execve(path string, argv, envp []string) error {
	done := ip.observe("execve", argv)
	err := ip.next.Execve(path, argv, ip.patched(envp))
	done()
	return err
}

// Execv forwards through execve with the live environment, patched.
func (ip *Interposer) Execv(path string, argv []string) error {
	done := ip.observe("execv", argv)
	err := ip.next.Execve(path, argv, ip.patched(os.Environ()))
	done()
	return err
}

// Execvpe reports the call and forwards it with a patched environment.
func (ip *Interposer) Execvpe(file string, argv, envp []string) error {
	done := ip.observe("execvpe", argv)
	err := ip.next.Execvpe(file, argv, ip.patched(envp))
	done()
	return err
}

// Execvp runs the forwarded PATH search under the restored interception
// environment.
func (ip *Interposer) Execvp(file string, argv []string) error {
	done := ip.observe("execvp", argv)
	err := ip.withInterceptionEnv(func() error {
		return ip.next.Execvp(file, argv)
	})
	done()
	return err
}

// ExecvP searches the explicit search path under the restored interception
// environment.
func (ip *Interposer) ExecvP(file, searchPath string, argv []string) error {
	done := ip.observe("execvP", argv)
	err := ip.withInterceptionEnv(func() error {
		return ip.next.ExecvP(file, searchPath, argv)
	})
	done()
	return err
}

// Execl normalizes the list-style arguments and forwards through execve
// with the live environment, patched.
func (ip *Interposer) Execl(path, arg0 string, args ...string) error {
	argv := strarray.Build(arg0, args...)
	done := ip.observe("execl", argv.Slice())
	err := ip.next.Execve(path, argv.Slice(), ip.patched(os.Environ()))
	done()
	return err
}

// Execlp normalizes the list-style arguments and forwards through the PATH
// searching variant.
func (ip *Interposer) Execlp(file, arg0 string, args ...string) error {
	argv := strarray.Build(arg0, args...)
	done := ip.observe("execlp", argv.Slice())
	err := ip.withInterceptionEnv(func() error {
		return ip.next.Execvp(file, argv.Slice())
	})
	done()
	return err
}

// Execle normalizes the list-style arguments and forwards with the given
// environment, patched. The trailing envp of the C signature moves ahead of
// the variadic arguments here.
func (ip *Interposer) Execle(path string, envp []string, arg0 string, args ...string) error {
	argv := strarray.Build(arg0, args...)
	done := ip.observe("execle", argv.Slice())
	err := ip.next.Execve(path, argv.Slice(), ip.patched(envp))
	done()
	return err
}

// Spawn reports the call and spawns with a patched environment.
func (ip *Interposer) Spawn(path string, argv, envp []string) (int, error) {
	done := ip.observe("posix_spawn", argv)
	pid, err := ip.next.Spawn(path, argv, ip.patched(envp))
	done()
	return pid, err
}

// Spawnp reports the call and spawns with a patched environment, searching
// the PATH carried in that environment.
func (ip *Interposer) Spawnp(file string, argv, envp []string) (int, error) {
	done := ip.observe("posix_spawnp", argv)
	pid, err := ip.next.Spawnp(file, argv, ip.patched(envp))
	done()
	return pid, err
}

// observe reports one call record unless an enclosing entry point already
// reported this logical attempt. It returns the closer that re-arms
// reporting once the forwarded call has returned control, so a retried
// attempt is observed independently.
func (ip *Interposer) observe(function string, argv []string) func() {
	if ip.Dormant() {
		return func() {}
	}
	prior := ip.reported.Load()
	if !prior {
		ip.report(function, argv)
		ip.reported.Store(true)
	}
	return func() {
		if !prior {
			ip.reported.Store(false)
		}
	}
}

func (ip *Interposer) report(function string, argv []string) {
	cwd, err := os.Getwd()
	if err != nil {
		ip.log.Fatal("resolving working directory", zap.String("function", function), zap.Error(err))
	}
	rec := &report.Record{
		Pid:       int32(os.Getpid()),
		Ppid:      int32(os.Getppid()),
		Function:  function,
		Directory: cwd,
		Command:   argv,
	}
	if err := ip.reporter.Report(rec); err != nil {
		ip.log.Fatal("reporting intercepted call", zap.String("function", function), zap.Error(err))
	}
}

// patched returns the environment vector the forwarded call should carry.
func (ip *Interposer) patched(envp []string) []string {
	if ip.Dormant() {
		return envp
	}
	return envpatch.Patch(envp, ip.state).Slice()
}

// withInterceptionEnv runs call with the interception variables restored
// into the live environment, then puts the caller's values back. Dormant
// instances call through directly.
func (ip *Interposer) withInterceptionEnv(call func() error) error {
	if ip.Dormant() {
		return call()
	}
	saved, err := envstate.Capture(ip.state.FlatRequired)
	if err != nil {
		ip.log.Fatal("capturing caller environment", zap.Error(err))
	}
	if err := ip.state.Restore(); err != nil {
		ip.log.Fatal("restoring interception environment", zap.Error(err))
	}
	callErr := call()
	if err := saved.Restore(); err != nil {
		ip.log.Fatal("restoring caller environment", zap.Error(err))
	}
	return callErr
}
