// Package testutil provides a stub database for postgres store tests. It
// understands the handful of statements the collections journal issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Row is one stored collection.
type Row struct {
	Version int64
	Payload []byte
}

// StubConn records statements and keeps collection rows in memory.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Rows       map[string]Row
	pending    map[string]Row
	FailExec   bool
	FailBegin  bool
	FailCommit bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string]Row)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Statements returns a copy of the executed statements.
func (c *StubConn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Execs...)
}

// Version returns the committed version of a collection.
func (c *StubConn) Version(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Rows[name].Version
}

// Bump simulates a foreign writer advancing a collection.
func (c *StubConn) Bump(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.Rows[name]
	row.Version++
	if row.Payload == nil {
		row.Payload = []byte("[]")
	}
	c.Rows[name] = row
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	c.pending = make(map[string]Row)
	c.mu.Unlock()
	return &stubTx{conn: c}, nil
}

func (c *StubConn) lookup(name string) (Row, bool) {
	if c.pending != nil {
		if row, ok := c.pending[name]; ok {
			return row, true
		}
	}
	row, ok := c.Rows[name]
	return row, ok
}

func (c *StubConn) write(name string, row Row) {
	if c.pending != nil {
		c.pending[name] = row
		return
	}
	c.Rows[name] = row
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	up := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(up, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(up, "INSERT INTO COLLECTIONS"):
		if len(args) != 2 {
			return nil, fmt.Errorf("insert expects 2 args, got %d", len(args))
		}
		name := asString(args[0].Value)
		if _, ok := c.lookup(name); ok {
			return driver.RowsAffected(0), nil
		}
		c.write(name, Row{Version: 1, Payload: asBytes(args[1].Value)})
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(up, "UPDATE COLLECTIONS"):
		if len(args) != 3 {
			return nil, fmt.Errorf("update expects 3 args, got %d", len(args))
		}
		name := asString(args[1].Value)
		expected, _ := args[2].Value.(int64)
		row, ok := c.lookup(name)
		if !ok || row.Version != expected {
			return driver.RowsAffected(0), nil
		}
		c.write(name, Row{Version: row.Version + 1, Payload: asBytes(args[0].Value)})
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailExec {
		return nil, fmt.Errorf("query fail")
	}
	lower := strings.ToLower(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(lower, "select name from collections"):
		names := make([]string, 0, len(c.Rows))
		for name := range c.Rows {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := &stubRows{cols: []string{"name"}}
		for _, name := range names {
			rows.rows = append(rows.rows, []driver.Value{name})
		}
		return rows, nil
	case strings.HasPrefix(lower, "select version, payload from collections"):
		rows := &stubRows{cols: []string{"version", "payload"}}
		if row, ok := c.lookup(asString(args[0].Value)); ok {
			rows.rows = append(rows.rows, []driver.Value{row.Version, row.Payload})
		}
		return rows, nil
	case strings.HasPrefix(lower, "select version from collections"):
		rows := &stubRows{cols: []string{"version"}}
		if row, ok := c.lookup(asString(args[0].Value)); ok {
			rows.rows = append(rows.rows, []driver.Value{row.Version})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func asString(v driver.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asBytes(v driver.Value) []byte {
	switch t := v.(type) {
	case []byte:
		return append([]byte(nil), t...)
	case string:
		return []byte(t)
	default:
		return nil
	}
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.pending = nil
		return fmt.Errorf("commit fail")
	}
	for name, row := range t.conn.pending {
		t.conn.Rows[name] = row
	}
	t.conn.pending = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.pending = nil
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
