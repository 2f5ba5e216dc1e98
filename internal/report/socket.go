package report

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// maxStringLen bounds length prefixes on decode so a corrupt or truncated
// stream cannot ask for an absurd allocation.
const maxStringLen = 16 << 20

// SocketReporter delivers records over a unix-domain stream socket, one
// short-lived connection per event. Integers travel in host-native byte
// order; writer and reader are assumed to share a host.
type SocketReporter struct {
	Endpoint string
}

// Report connects to the collector endpoint, writes the full record, and
// closes the connection. The record is staged into one buffer first so a
// half-written event can never be mistaken for a complete one.
func (r *SocketReporter) Report(rec *Record) error {
	conn, err := net.Dial("unix", r.Endpoint)
	if err != nil {
		return fmt.Errorf("connecting to collector: %w", err)
	}
	defer conn.Close()
	if err := EncodeBinary(conn, rec); err != nil {
		return fmt.Errorf("sending record: %w", err)
	}
	return nil
}

// EncodeBinary writes the length-prefixed binary form of a record. The
// whole record is written with a single Write call, which drains fully or
// fails.
func EncodeBinary(w io.Writer, rec *Record) error {
	var buf bytes.Buffer
	binary.Write(&buf, binary.NativeEndian, rec.Pid)
	binary.Write(&buf, binary.NativeEndian, rec.Ppid)
	putString(&buf, rec.Function)
	putString(&buf, rec.Directory)
	binary.Write(&buf, binary.NativeEndian, uint64(len(rec.Command)))
	for _, arg := range rec.Command {
		putString(&buf, arg)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func putString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.NativeEndian, uint64(len(s)))
	buf.WriteString(s)
}

// DecodeBinary reads one length-prefixed binary record from the stream.
func DecodeBinary(r io.Reader) (*Record, error) {
	var rec Record
	if err := binary.Read(r, binary.NativeEndian, &rec.Pid); err != nil {
		return nil, fmt.Errorf("reading pid: %w", err)
	}
	if err := binary.Read(r, binary.NativeEndian, &rec.Ppid); err != nil {
		return nil, fmt.Errorf("reading ppid: %w", err)
	}
	var err error
	if rec.Function, err = getString(r); err != nil {
		return nil, fmt.Errorf("reading function: %w", err)
	}
	if rec.Directory, err = getString(r); err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var count uint64
	if err := binary.Read(r, binary.NativeEndian, &count); err != nil {
		return nil, fmt.Errorf("reading argument count: %w", err)
	}
	if count > maxStringLen {
		return nil, fmt.Errorf("implausible argument count %d", count)
	}
	for i := uint64(0); i < count; i++ {
		arg, err := getString(r)
		if err != nil {
			return nil, fmt.Errorf("reading argument %d: %w", i, err)
		}
		rec.Command = append(rec.Command, arg)
	}
	return &rec, nil
}

func getString(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.NativeEndian, &length); err != nil {
		return "", err
	}
	if length > maxStringLen {
		return "", fmt.Errorf("implausible string length %d", length)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
