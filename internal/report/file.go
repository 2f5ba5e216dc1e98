package report

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// One-byte separators of the file-drop text format. Fields are terminated
// by fieldSep; each element of the trailing argument list is terminated by
// elemSep. The format is shared with the collector side and must stay easy
// to reconstruct without this package.
const (
	fieldSep byte = 0x1e
	elemSep  byte = 0x1f
)

// FilePattern is the collision-free naming template for dropped event
// files. The collector discovers events by globbing it.
const FilePattern = "cmd.*"

// FileReporter writes one uniquely-named artifact file per event into Dir.
// Isolation across concurrently-reporting processes comes from the unique
// names; no cross-process locking is involved.
type FileReporter struct {
	Dir string
}

// Report writes the record into a fresh file inside the drop directory.
func (r *FileReporter) Report(rec *Record) error {
	f, err := os.CreateTemp(r.Dir, FilePattern)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	writeTextField(w, strconv.Itoa(int(rec.Pid)))
	writeTextField(w, strconv.Itoa(int(rec.Ppid)))
	writeTextField(w, rec.Function)
	writeTextField(w, rec.Directory)
	for _, arg := range rec.Command {
		w.WriteString(arg)
		w.WriteByte(elemSep)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing trace file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}
	return nil
}

func writeTextField(w *bufio.Writer, field string) {
	w.WriteString(field)
	w.WriteByte(fieldSep)
}

// ParseFile reads one dropped event file back into a record.
func ParseFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	rec, err := DecodeText(data)
	if err != nil {
		return nil, fmt.Errorf("parsing trace file %s: %w", path, err)
	}
	return rec, nil
}

// DecodeText decodes the file-drop text format.
func DecodeText(data []byte) (*Record, error) {
	fields := bytes.Split(data, []byte{fieldSep})
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	pid, err := strconv.ParseInt(string(fields[0]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad pid field: %w", err)
	}
	ppid, err := strconv.ParseInt(string(fields[1]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad ppid field: %w", err)
	}
	rec := &Record{
		Pid:       int32(pid),
		Ppid:      int32(ppid),
		Function:  string(fields[2]),
		Directory: string(fields[3]),
	}
	// Every argument is terminated by elemSep, so a split leaves one
	// trailing empty element to drop. A blob without the final terminator
	// is a truncated record.
	if blob := string(fields[4]); blob != "" {
		if !strings.HasSuffix(blob, string(elemSep)) {
			return nil, fmt.Errorf("unterminated argument list")
		}
		parts := strings.Split(blob, string(elemSep))
		rec.Command = parts[:len(parts)-1]
	}
	return rec, nil
}
