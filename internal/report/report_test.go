package report

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	return &Record{
		Pid:       123,
		Ppid:      1,
		Function:  "execve",
		Directory: "/tmp",
		Command:   []string{"cc", "-c", "a.c"},
	}
}

func TestNew_SelectsTransport(t *testing.T) {
	r := New("/tmp/drop")
	assert.IsType(t, &FileReporter{}, r)

	r = New("unix:///tmp/collector.sock")
	require.IsType(t, &SocketReporter{}, r)
	assert.Equal(t, "/tmp/collector.sock", r.(*SocketReporter).Endpoint)
}

func TestFileDrop_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := &FileReporter{Dir: dir}
	require.NoError(t, r.Report(sampleRecord()))

	names, err := filepath.Glob(filepath.Join(dir, FilePattern))
	require.NoError(t, err)
	require.Len(t, names, 1)

	rec, err := ParseFile(names[0])
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), rec)
}

func TestFileDrop_EmptyCommand(t *testing.T) {
	dir := t.TempDir()
	r := &FileReporter{Dir: dir}
	require.NoError(t, r.Report(&Record{Pid: 1, Ppid: 0, Function: "execv", Directory: "/"}))

	names, err := filepath.Glob(filepath.Join(dir, FilePattern))
	require.NoError(t, err)
	rec, err := ParseFile(names[0])
	require.NoError(t, err)
	assert.Empty(t, rec.Command)
}

func TestFileDrop_MissingDirectoryFails(t *testing.T) {
	r := &FileReporter{Dir: "/nonexistent/drop/dir"}
	assert.Error(t, r.Report(sampleRecord()))
}

func TestDecodeText_Malformed(t *testing.T) {
	_, err := DecodeText([]byte("not a trace"))
	assert.Error(t, err)
}

func TestFileDrop_ConcurrentReporters(t *testing.T) {
	dir := t.TempDir()
	const n = 32

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := &FileReporter{Dir: dir}
			rec := sampleRecord()
			rec.Pid = int32(1000 + i)
			assert.NoError(t, r.Report(rec))
		}(i)
	}
	wg.Wait()

	names, err := filepath.Glob(filepath.Join(dir, FilePattern))
	require.NoError(t, err)
	require.Len(t, names, n, "every reporter must get its own file")

	seen := make(map[int32]bool)
	for _, name := range names {
		rec, err := ParseFile(name)
		require.NoError(t, err, "no file may be corrupted or interleaved")
		assert.Equal(t, []string{"cc", "-c", "a.c"}, rec.Command)
		seen[rec.Pid] = true
	}
	assert.Len(t, seen, n)
}

func TestBinary_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeBinary(&buf, sampleRecord()))

	rec, err := DecodeBinary(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), rec)
}

func TestBinary_SeparatorBytesAreData(t *testing.T) {
	// The text encoding's separator bytes must pass through the binary
	// encoding untouched.
	in := sampleRecord()
	in.Command = []string{"cc", string([]byte{0x1e, 0x1f}), "-o", "a\x1e.o"}

	var buf bytes.Buffer
	require.NoError(t, EncodeBinary(&buf, in))
	rec, err := DecodeBinary(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Command, rec.Command)
}

func TestBinary_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeBinary(&buf, sampleRecord()))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := DecodeBinary(bytes.NewReader(truncated))
	assert.Error(t, err, "a half-written record must never decode as complete")
}

func TestSocketReporter_DeliversOverUnixSocket(t *testing.T) {
	sock := filepath.Join(shortTempDir(t), "collector.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan *Record, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		rec, err := DecodeBinary(conn)
		if err == nil {
			received <- rec
		}
	}()

	r := &SocketReporter{Endpoint: sock}
	require.NoError(t, r.Report(sampleRecord()))
	assert.Equal(t, sampleRecord(), <-received)
}

func TestSocketReporter_UnreachableEndpointFails(t *testing.T) {
	r := &SocketReporter{Endpoint: "/nonexistent/collector.sock"}
	assert.Error(t, r.Report(sampleRecord()))
}

// shortTempDir works around the unix socket path length limit, which
// t.TempDir can exceed on long test names.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "earshot")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestFilePattern_UniqueNames(t *testing.T) {
	dir := t.TempDir()
	r := &FileReporter{Dir: dir}
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Report(sampleRecord()))
	}
	names, err := filepath.Glob(filepath.Join(dir, FilePattern))
	require.NoError(t, err)
	assert.Len(t, names, 3)
}
