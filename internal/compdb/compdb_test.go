package compdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earshot/internal/report"
)

func TestSplit_SimpleCompile(t *testing.T) {
	c, ok := Split([]string{"cc", "-c", "-Wall", "main.c"})
	require.True(t, ok)
	assert.Equal(t, "cc", c.Compiler)
	assert.Equal(t, []string{"-Wall"}, c.Flags)
	assert.Equal(t, []string{"main.c"}, c.Sources)
}

func TestSplit_CompilerNameVariants(t *testing.T) {
	for _, name := range []string{"gcc", "gcc-12", "clang", "clang-17", "cc", "icc", "/usr/bin/gcc", "arm-linux-gnueabi-gcc"} {
		_, ok := Split([]string{name, "-c", "a.c"})
		assert.True(t, ok, "expected %q to classify as a compiler", name)
	}
	for _, name := range []string{"g++", "clang++", "c++", "CC", "icpc"} {
		c, ok := Split([]string{name, "-c", "a.cpp"})
		require.True(t, ok, name)
		assert.Equal(t, "c++", c.Compiler)
	}
}

func TestSplit_NotACompiler(t *testing.T) {
	for _, command := range [][]string{
		{"ld", "-o", "a.out", "a.o"},
		{"cp", "a.c", "b.c"},
		{"make", "all"},
		nil,
	} {
		_, ok := Split(command)
		assert.False(t, ok, "%v", command)
	}
}

func TestSplit_WrapperPeeled(t *testing.T) {
	c, ok := Split([]string{"ccache", "gcc", "-c", "a.c"})
	require.True(t, ok)
	assert.Equal(t, "cc", c.Compiler)
	assert.Equal(t, []string{"a.c"}, c.Sources)
}

func TestSplit_IgnoredFlagsDropped(t *testing.T) {
	c, ok := Split([]string{"gcc", "-c", "-MD", "-MF", "a.d", "-O2", "a.c", "-L", "/lib", "-lm"})
	require.True(t, ok)
	assert.Equal(t, []string{"-O2", "-lm"}, c.Flags)
	assert.Equal(t, []string{"a.c"}, c.Sources)
}

func TestSplit_PreprocessorOnlySkipped(t *testing.T) {
	_, ok := Split([]string{"gcc", "-E", "a.c"})
	assert.False(t, ok)
}

func TestSplit_LinkOnlySkipped(t *testing.T) {
	_, ok := Split([]string{"gcc", "-o", "a.out", "a.o"})
	assert.False(t, ok, "no source files means no compilation entry")
}

func TestEntries_OnePerSource(t *testing.T) {
	rec := &report.Record{
		Directory: "/src",
		Function:  "execve",
		Command:   []string{"g++", "-c", "-O2", "a.cpp", "b.cpp"},
	}
	entries := Entries(rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "/src", entries[0].Directory)
	assert.Equal(t, "/src/a.cpp", entries[0].File)
	assert.Equal(t, []string{"c++", "-c", "-O2", "a.cpp"}, entries[0].Arguments)
	assert.Equal(t, "/src/b.cpp", entries[1].File)
}

func TestEntries_AbsoluteSourcePath(t *testing.T) {
	rec := &report.Record{
		Directory: "/src",
		Command:   []string{"cc", "-c", "/other/a.c"},
	}
	entries := Entries(rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "/other/a.c", entries[0].File)
}

func TestDedupe(t *testing.T) {
	e := Entry{Directory: "/src", File: "/src/a.c", Arguments: []string{"cc", "-c", "a.c"}}
	other := Entry{Directory: "/src", File: "/src/b.c", Arguments: []string{"cc", "-c", "b.c"}}
	out := Dedupe([]Entry{e, other, e})
	assert.Equal(t, []Entry{e, other}, out)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	entries := []Entry{
		{Directory: "/src", File: "/src/a.c", Arguments: []string{"cc", "-c", "a.c"}},
	}
	require.NoError(t, Write(path, entries, false))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestWrite_MergeKeepsPreviousEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	first := []Entry{{Directory: "/src", File: "/src/a.c", Arguments: []string{"cc", "-c", "a.c"}}}
	require.NoError(t, Write(path, first, false))

	second := []Entry{{Directory: "/src", File: "/src/b.c", Arguments: []string{"cc", "-c", "b.c"}}}
	require.NoError(t, Write(path, second, true))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWrite_MergeWithoutExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	require.NoError(t, Write(path, nil, true))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFilter_Match(t *testing.T) {
	f, err := NewFilter(`"-O2" in args`)
	require.NoError(t, err)

	rec := &report.Record{Command: []string{"cc", "-O2", "-c", "a.c"}}
	ok, err := f.Match(rec)
	require.NoError(t, err)
	assert.True(t, ok)

	rec.Command = []string{"cc", "-c", "a.c"}
	ok, err = f.Match(rec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilter_DirectoryAndFunction(t *testing.T) {
	f, err := NewFilter(`function == "execve" and not (directory startsWith "/src/vendor")`)
	require.NoError(t, err)

	ok, err := f.Match(&report.Record{Function: "execve", Directory: "/src/app"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Match(&report.Record{Function: "execve", Directory: "/src/vendor/lib"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilter_NilMatchesAll(t *testing.T) {
	var f *Filter
	ok, err := f.Match(&report.Record{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilter_BadExpression(t *testing.T) {
	_, err := NewFilter(`args +`)
	assert.Error(t, err)
}
