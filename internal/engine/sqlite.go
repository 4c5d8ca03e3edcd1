// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// TraceSchema creates the tables the viewer queries. Timestamps and
// durations are nanoseconds. Global counters have a null ref_type.
const TraceSchema = `
CREATE TABLE IF NOT EXISTS trace_bounds (
  start_ts INTEGER NOT NULL,
  end_ts   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS process (
  upid INTEGER PRIMARY KEY,
  pid  INTEGER,
  name TEXT
);
CREATE TABLE IF NOT EXISTS thread (
  utid INTEGER PRIMARY KEY,
  upid INTEGER,
  tid  INTEGER,
  name TEXT
);
CREATE TABLE IF NOT EXISTS sched (
  ts   INTEGER NOT NULL,
  dur  INTEGER NOT NULL,
  cpu  INTEGER NOT NULL,
  utid INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS counters (
  id       INTEGER PRIMARY KEY,
  ts       INTEGER NOT NULL,
  dur      INTEGER NOT NULL DEFAULT 0,
  ts_end   INTEGER NOT NULL,
  name     TEXT NOT NULL,
  value    REAL NOT NULL,
  ref      INTEGER,
  ref_type TEXT
);
CREATE TABLE IF NOT EXISTS slices (
  ts    INTEGER NOT NULL,
  dur   INTEGER NOT NULL,
  utid  INTEGER NOT NULL,
  depth INTEGER NOT NULL,
  cat   TEXT,
  name  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sched_cpu_ts ON sched(cpu, ts);
CREATE INDEX IF NOT EXISTS idx_counters_name_ref ON counters(name, ref, ts);
CREATE INDEX IF NOT EXISTS idx_slices_utid_ts ON slices(utid, ts);
`

// SQLiteEngine executes queries on a trace stored in a SQLite database.
// Per-track views are temporary and live on the connection, so all
// queries share a single connection.
type SQLiteEngine struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	path string
}

// OpenSQLite opens the trace database at path. ":memory:" opens an empty
// in-memory trace.
func OpenSQLite(path string) (*SQLiteEngine, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenURI)
	if err != nil {
		return nil, fmt.Errorf("opening trace database %s: %w", path, err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA temp_store = MEMORY", nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configuring trace database: %w", err)
	}
	return &SQLiteEngine{conn: conn, path: path}, nil
}

// Path returns the database path.
func (e *SQLiteEngine) Path() string {
	return e.path
}

// CreateSchema creates the trace tables if they do not exist.
func (e *SQLiteEngine) CreateSchema() error {
	return e.Exec(TraceSchema)
}

// Exec runs a script of statements, typically to import or seed a trace.
func (e *SQLiteEngine) Exec(script string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := sqlitex.ExecuteScript(e.conn, script, nil); err != nil {
		return fmt.Errorf("executing script: %w", err)
	}
	return nil
}

// Close closes the connection.
func (e *SQLiteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.Close()
}

// Query implements Engine. Only the first statement of query is executed.
func (e *SQLiteEngine) Query(ctx context.Context, query string) *Result {
	if strings.TrimSpace(query) == "" {
		return ErrorResult("empty query")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx != nil {
		prev := e.conn.SetInterrupt(ctx.Done())
		defer e.conn.SetInterrupt(prev)
	}

	stmt, _, err := e.conn.PrepareTransient(query)
	if err != nil {
		return ErrorResult("%v", err)
	}
	if stmt == nil {
		return ErrorResult("empty query")
	}
	defer stmt.Finalize()

	cols := make([]*columnBuilder, stmt.ColumnCount())
	for i := range cols {
		cols[i] = &columnBuilder{name: stmt.ColumnName(i)}
	}

	rows := 0
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return ErrorResult("%v", err)
		}
		if !hasRow {
			break
		}
		for i, c := range cols {
			switch stmt.ColumnType(i) {
			case sqlite.TypeNull:
				c.add(nil)
			case sqlite.TypeInteger:
				c.add(stmt.ColumnInt64(i))
			case sqlite.TypeFloat:
				c.add(stmt.ColumnFloat(i))
			default:
				c.add(stmt.ColumnText(i))
			}
		}
		rows++
	}

	r := &Result{NumRecords: rows, Columns: make([]Column, len(cols))}
	for i, c := range cols {
		r.Columns[i] = c.build()
	}
	return r
}
