// Package report serializes intercepted process-creation calls and delivers
// them to the collector.
//
// Two interchangeable encodings exist: a file-drop protocol (one artifact
// file per event, field/record-separated text) and a socket protocol
// (per-event unix-domain connection, length-prefixed binary). The encoding
// is selected once at load time from the configured output value and is
// opaque to the hook layer. Delivery is fire and forget: no acknowledgment
// is read back, and a transport failure is surfaced to the caller rather
// than swallowed.
package report

import "strings"

// Record describes one intercepted process-creation call. It is constructed
// immediately before reporting and discarded afterwards. Command is the
// command line exactly as the host process presented it.
type Record struct {
	Pid       int32
	Ppid      int32
	Function  string
	Directory string
	Command   []string
}

// Reporter delivers one record to the collector.
type Reporter interface {
	Report(rec *Record) error
}

// SocketScheme prefixes an output value that names a unix-domain socket
// endpoint instead of a drop directory.
const SocketScheme = "unix://"

// New selects the transport for the given output value: a "unix://" prefix
// selects the socket protocol, anything else is a file-drop directory.
func New(output string) Reporter {
	if endpoint, ok := strings.CutPrefix(output, SocketScheme); ok {
		return &SocketReporter{Endpoint: endpoint}
	}
	return &FileReporter{Dir: output}
}
