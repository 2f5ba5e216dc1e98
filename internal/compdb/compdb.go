// Package compdb folds collected call records into a compilation database.
//
// Classification finds compiler invocations among arbitrary process
// creations: wrapper prefixes are peeled off, the executable name is
// matched against known compiler name patterns, flags irrelevant to a
// compilation database are dropped, and one entry is produced per source
// file on the command line.
package compdb

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"earshot/internal/report"
)

// Entry is one compilation database element.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
}

// Compilation is a classified compiler invocation.
type Compilation struct {
	Compiler string
	Flags    []string
	Sources  []string
}

var (
	wrapperPattern = regexp.MustCompile(`^(distcc|ccache)$`)
	ccPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`^([^-]*-)*[mg]cc(-\d+(\.\d+){0,2})?$`),
		regexp.MustCompile(`^([^-]*-)*clang(-\d+(\.\d+){0,2})?$`),
		regexp.MustCompile(`^(|i)cc$`),
	}
	cxxPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(c\+\+|cxx|CC)$`),
		regexp.MustCompile(`^([^-]*-)*[mg]\+\+(-\d+(\.\d+){0,2})?$`),
		regexp.MustCompile(`^([^-]*-)*clang\+\+(-\d+(\.\d+){0,2})?$`),
		regexp.MustCompile(`^icpc$`),
	}
)

// Flags dropped from entries, mapped to the number of following arguments
// consumed with them. Dependency-generation flags would only produce
// duplicate entries; linker flags never reach the compilation step.
var ignoredFlags = map[string]int{
	"-c":        0,
	"-MD":       0,
	"-MMD":      0,
	"-MG":       0,
	"-MP":       0,
	"-MF":       1,
	"-MT":       1,
	"-MQ":       1,
	"-static":   0,
	"-shared":   0,
	"-rdynamic": 0,
	"-l":        1,
	"-L":        1,
	"-u":        1,
	"-z":        1,
	"-T":        1,
	"-Xlinker":  1,
}

var sourceExtensions = map[string]bool{
	".c": true, ".C": true, ".cc": true, ".CC": true, ".cxx": true,
	".cp": true, ".cpp": true, ".c++": true, ".m": true, ".mm": true,
	".i": true, ".ii": true, ".mii": true, ".s": true, ".S": true,
}

func isCompiler(name string) (string, bool) {
	base := filepath.Base(name)
	for _, p := range ccPatterns {
		if p.MatchString(base) {
			return "cc", true
		}
	}
	for _, p := range cxxPatterns {
		if p.MatchString(base) {
			return "c++", true
		}
	}
	return "", false
}

func isSource(arg string) bool {
	return sourceExtensions[filepath.Ext(arg)]
}

// Split classifies a command line. It returns false when the command is not
// a compiler invocation that compiles at least one source file.
func Split(command []string) (*Compilation, bool) {
	if len(command) == 0 {
		return nil, false
	}
	// Peel compiler wrappers off the front and classify what they wrap.
	if wrapperPattern.MatchString(filepath.Base(command[0])) {
		return Split(command[1:])
	}
	compiler, ok := isCompiler(command[0])
	if !ok {
		return nil, false
	}

	c := &Compilation{Compiler: compiler}
	args := command[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-E" || arg == "-###" || arg == "-cc1":
			// Preprocessing or driver-internal run, not a compilation.
			return nil, false
		case isSource(arg):
			c.Sources = append(c.Sources, arg)
		default:
			if skip, ok := ignoredFlags[arg]; ok {
				i += skip
				continue
			}
			c.Flags = append(c.Flags, arg)
		}
	}
	if len(c.Sources) == 0 {
		return nil, false
	}
	return c, true
}

// Entries formats one record into compilation database entries, one per
// source file. Non-compiler records produce nothing.
func Entries(rec *report.Record) []Entry {
	c, ok := Split(rec.Command)
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(c.Sources))
	for _, source := range c.Sources {
		args := make([]string, 0, len(c.Flags)+3)
		args = append(args, c.Compiler, "-c")
		args = append(args, c.Flags...)
		args = append(args, source)
		entries = append(entries, Entry{
			Directory: rec.Directory,
			File:      abspath(rec.Directory, source),
			Arguments: args,
		})
	}
	return entries
}

func abspath(cwd, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(cwd, name)
}

func entryHash(e Entry) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00", e.Directory, e.File)
	for _, a := range e.Arguments {
		fmt.Fprintf(h, "%s\x00", a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Dedupe drops repeated entries, keeping first occurrences in order.
// Compiler wrappers commonly produce the same compilation twice.
func Dedupe(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		key := entryHash(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// Write dumps entries as a compilation database JSON file. With merge set,
// entries from an existing database at the same path are kept ahead of the
// new ones, supporting incremental builds.
func Write(path string, entries []Entry, merge bool) error {
	if merge {
		previous, err := Read(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		entries = append(previous, entries...)
	}
	entries = Dedupe(entries)
	if entries == nil {
		entries = []Entry{}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].File != entries[j].File {
			return entries[i].File < entries[j].File
		}
		return strings.Join(entries[i].Arguments, " ") < strings.Join(entries[j].Arguments, " ")
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding compilation database: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing compilation database: %w", err)
	}
	return nil
}

// Read loads an existing compilation database.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing compilation database %s: %w", path, err)
	}
	return entries, nil
}
