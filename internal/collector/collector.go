// Package collector ingests call records reported by intercepted processes,
// in both transport encodings: dropped artifact files discovered in a
// directory, and binary records arriving over a unix-domain socket.
//
// Many independently-intercepted processes report concurrently; the socket
// listener accepts each short-lived connection on its own goroutine, and
// file discovery relies on every event having its own uniquely-named file.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"earshot/internal/report"
)

// Handler consumes one collected record.
type Handler interface {
	Handle(rec *report.Record) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(rec *report.Record) error

// Handle calls f.
func (f HandlerFunc) Handle(rec *report.Record) error { return f(rec) }

// Buffer is a Handler that accumulates records in memory, safe for
// concurrent use.
type Buffer struct {
	mu      sync.Mutex
	records []*report.Record
}

// Handle appends the record.
func (b *Buffer) Handle(rec *report.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	return nil
}

// Records returns a snapshot of everything collected so far.
func (b *Buffer) Records() []*report.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*report.Record, len(b.records))
	copy(out, b.records)
	return out
}

// SocketCollector accepts reporter connections and dispatches decoded
// records to a handler.
type SocketCollector struct {
	ln      net.Listener
	handler Handler
	log     *zap.Logger
	wg      sync.WaitGroup
}

// ListenSocket binds the collector endpoint. A stale socket file from a
// previous run is removed first.
func ListenSocket(endpoint string, handler Handler, log *zap.Logger) (*SocketCollector, error) {
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("binding collector socket: %w", err)
	}
	return &SocketCollector{ln: ln, handler: handler, log: log}, nil
}

// Endpoint returns the bound socket path.
func (c *SocketCollector) Endpoint() string {
	return c.ln.Addr().String()
}

// Start begins accepting connections in the background until the context is
// cancelled or Close is called.
func (c *SocketCollector) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.ln.Close()
	}()
	c.wg.Add(1)
	go c.acceptLoop()
}

func (c *SocketCollector) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.Warn("accepting reporter connection", zap.Error(err))
			continue
		}
		c.wg.Add(1)
		go c.serveConn(conn)
	}
}

func (c *SocketCollector) serveConn(conn net.Conn) {
	defer c.wg.Done()
	defer conn.Close()
	rec, err := report.DecodeBinary(conn)
	if err != nil {
		c.log.Warn("decoding reported record", zap.Error(err))
		return
	}
	if err := c.handler.Handle(rec); err != nil {
		c.log.Warn("handling reported record", zap.Error(err))
	}
}

// Close stops accepting and waits for in-flight connections to drain.
func (c *SocketCollector) Close() error {
	err := c.ln.Close()
	c.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// ScanDir parses every dropped event file in the directory, in name order.
// Ordering between events of different processes carries no guarantee; the
// stable ordering only keeps output deterministic.
func ScanDir(dir string) ([]*report.Record, error) {
	names, err := filepath.Glob(filepath.Join(dir, report.FilePattern))
	if err != nil {
		return nil, fmt.Errorf("globbing trace files: %w", err)
	}
	sort.Strings(names)
	records := make([]*report.Record, 0, len(names))
	for _, name := range names {
		rec, err := report.ParseFile(name)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
