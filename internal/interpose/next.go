package interpose

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// NextExec is the real process-creation implementation a hook forwards to.
// It is resolved once when the Interposer is built, never looked up from
// inside a hook body, so a hook can never recurse into itself.
type NextExec interface {
	Execve(path string, argv, envp []string) error
	Execvpe(file string, argv, envp []string) error
	Execvp(file string, argv []string) error
	ExecvP(file, searchPath string, argv []string) error
	Spawn(path string, argv, envp []string) (pid int, err error)
	Spawnp(file string, argv, envp []string) (pid int, err error)
}

// sysExec is the default NextExec backed by the operating system.
type sysExec struct{}

func (sysExec) Execve(path string, argv, envp []string) error {
	return unix.Exec(path, argv, envp)
}

func (sysExec) Execvpe(file string, argv, envp []string) error {
	path, err := lookPathIn(file, pathValue(envp))
	if err != nil {
		return err
	}
	return unix.Exec(path, argv, envp)
}

func (sysExec) Execvp(file string, argv []string) error {
	// The search runs against the live environment, which the hook layer
	// has restored to the interception state; the child inherits it.
	path, err := exec.LookPath(file)
	if err != nil {
		return err
	}
	return unix.Exec(path, argv, os.Environ())
}

func (sysExec) ExecvP(file, searchPath string, argv []string) error {
	path, err := lookPathIn(file, searchPath)
	if err != nil {
		return err
	}
	return unix.Exec(path, argv, os.Environ())
}

func (sysExec) Spawn(path string, argv, envp []string) (int, error) {
	return syscall.ForkExec(path, argv, &syscall.ProcAttr{
		Env:   envp,
		Files: []uintptr{0, 1, 2},
	})
}

func (sysExec) Spawnp(file string, argv, envp []string) (int, error) {
	path, err := lookPathIn(file, pathValue(envp))
	if err != nil {
		return 0, err
	}
	return syscall.ForkExec(path, argv, &syscall.ProcAttr{
		Env:   envp,
		Files: []uintptr{0, 1, 2},
	})
}

// pathValue extracts PATH from an environment vector, falling back to the
// live environment when the vector does not carry one.
func pathValue(envp []string) string {
	for _, entry := range envp {
		if v, ok := strings.CutPrefix(entry, "PATH="); ok {
			return v
		}
	}
	return os.Getenv("PATH")
}

// lookPathIn resolves a bare command name against an explicit search path.
// Names containing a path separator are used as given.
func lookPathIn(file, searchPath string) (string, error) {
	if strings.Contains(file, "/") {
		return file, nil
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", file, exec.ErrNotFound)
}

// LookPathExcluding resolves a command on the live PATH while skipping one
// directory. The injected wrapper uses it to find the real tool its own
// directory is shadowing.
func LookPathExcluding(file, excludeDir string) (string, error) {
	if strings.Contains(file, "/") {
		file = filepath.Base(file)
	}
	exclude, _ := filepath.Abs(excludeDir)
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			dir = "."
		}
		if abs, err := filepath.Abs(dir); err == nil && abs == exclude {
			continue
		}
		candidate := filepath.Join(dir, file)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", file, exec.ErrNotFound)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
