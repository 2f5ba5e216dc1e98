// Package eventdb persists raw collected call records to SQLite for
// post-mortem inspection of a build, independent of the compilation
// database output.
package eventdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"earshot/internal/report"
)

// DB handles event persistence.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS exec_events (
	id         TEXT PRIMARY KEY,
	pid        INTEGER NOT NULL,
	ppid       INTEGER NOT NULL,
	function   TEXT NOT NULL,
	directory  TEXT NOT NULL,
	command    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exec_events_pid ON exec_events(pid);
`

// Open creates or opens the event database at path and ensures the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening event database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing event database schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Insert stores one record and returns its generated id.
func (d *DB) Insert(rec *report.Record) (string, error) {
	command, err := json.Marshal(rec.Command)
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}
	id := xid.New().String()
	_, err = d.db.Exec(
		`INSERT INTO exec_events (id, pid, ppid, function, directory, command, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, rec.Pid, rec.Ppid, rec.Function, rec.Directory, string(command), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}

// ByPid returns every stored record for one process, oldest first.
func (d *DB) ByPid(pid int32) ([]*report.Record, error) {
	rows, err := d.db.Query(
		`SELECT pid, ppid, function, directory, command
		 FROM exec_events WHERE pid = ? ORDER BY created_at, id`, pid)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// All returns every stored record, oldest first.
func (d *DB) All() ([]*report.Record, error) {
	rows, err := d.db.Query(
		`SELECT pid, ppid, function, directory, command
		 FROM exec_events ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*report.Record, error) {
	var records []*report.Record
	for rows.Next() {
		var rec report.Record
		var command string
		if err := rows.Scan(&rec.Pid, &rec.Ppid, &rec.Function, &rec.Directory, &command); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if err := json.Unmarshal([]byte(command), &rec.Command); err != nil {
			return nil, fmt.Errorf("decoding command: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Count returns the number of stored events.
func (d *DB) Count() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM exec_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
