// Package testutil provides a stub database/sql driver for postgres store
// tests. It understands the multi-row INSERT and SELECT shapes the store
// issues, plus the revision compare-and-set, and keeps rows per table in
// memory.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var stubSeq atomic.Int64

const revisionTable = "assetcore_revision"

// StubConn records statements and holds table rows for the stub driver.
type StubConn struct {
	Execs     []string
	Tables    map[string][]map[string]any
	FailPing  bool
	FailBegin bool
	// TableErrs fails any INSERT into or SELECT from the named table.
	TableErrs  map[string]error
	FailCommit bool
	Commits    int
	Rollbacks  int

	pending map[string][]map[string]any
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
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
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Writes inside the transaction are
// staged and only become visible on commit.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.pending = make(map[string][]map[string]any, len(c.Tables))
	for table, rows := range c.Tables {
		c.pending[table] = append([]map[string]any(nil), rows...)
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	up := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(up, "UPDATE "+strings.ToUpper(revisionTable)) {
		return c.bumpRevision(args)
	}
	if !strings.HasPrefix(up, "INSERT INTO") {
		return driver.RowsAffected(0), nil
	}
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if err := c.TableErrs[table]; err != nil {
		return nil, err
	}
	if len(cols) == 0 || len(args)%len(cols) != 0 {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	target := c.target()
	upsert := strings.Contains(strings.ToUpper(query), "ON CONFLICT")
	n := len(args) / len(cols)
	for r := 0; r < n; r++ {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[r*len(cols)+i].Value
		}
		if upsert {
			var filtered []map[string]any
			for _, existing := range target[table] {
				if existing[cols[0]] != row[cols[0]] {
					filtered = append(filtered, existing)
				}
			}
			target[table] = filtered
		}
		target[table] = append(target[table], row)
	}
	return driver.RowsAffected(n), nil
}

func (c *StubConn) target() map[string][]map[string]any {
	if c.pending != nil {
		return c.pending
	}
	return c.Tables
}

// bumpRevision advances the revision row only when it still holds the
// expected value.
func (c *StubConn) bumpRevision(args []driver.NamedValue) (driver.Result, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("revision update expects one argument, got %d", len(args))
	}
	expected, ok := args[0].Value.(int64)
	if !ok {
		return nil, fmt.Errorf("revision argument has type %T", args[0].Value)
	}
	target := c.target()
	cur := revisionOf(target)
	if cur != expected {
		return driver.RowsAffected(0), nil
	}
	target[revisionTable] = []map[string]any{{"id": int64(1), "rev": cur + 1}}
	return driver.RowsAffected(1), nil
}

// Revision returns the committed revision.
func (c *StubConn) Revision() int64 { return revisionOf(c.Tables) }

// SetRevision overwrites the committed revision, as another writer would.
func (c *StubConn) SetRevision(rev int64) {
	c.Tables[revisionTable] = []map[string]any{{"id": int64(1), "rev": rev}}
}

func revisionOf(tables map[string][]map[string]any) int64 {
	rows := tables[revisionTable]
	if len(rows) == 0 {
		return 0
	}
	rev, _ := rows[0]["rev"].(int64)
	return rev
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if err := c.TableErrs[table]; err != nil {
		return nil, err
	}
	tableRows := c.Tables[table]
	values := make([][]driver.Value, 0, len(tableRows))
	for _, row := range tableRows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		t.conn.pending = nil
		return fmt.Errorf("commit fail")
	}
	t.conn.Tables = t.conn.pending
	t.conn.pending = nil
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.pending = nil
	t.conn.Rollbacks++
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

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	const selectPrefix, fromToken = "select ", " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	rest := strings.Fields(lower[fromIdx+len(fromToken):])
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return rest[0], splitColumns(lower[len(selectPrefix):fromIdx]), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
