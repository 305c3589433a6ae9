// Package sqlite implements the SQL engine connection and the database
// handle over database/sql. The pure Go modernc.org/sqlite driver is used by
// default; building with -tags cgo_sqlite selects mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/internal/naming"
	"github.com/mesh-intelligence/larder/internal/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DriverName returns the database/sql driver name in use.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" for modernc.org/sqlite and "cgo" for
// mattn/go-sqlite3.
func DriverType() string {
	return driverType
}

// querier is satisfied by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is a single SQLite connection. All statements of one Conn run on the
// same underlying connection, so PRAGMA settings persist between calls.
type Conn struct {
	path string
	db   *sql.DB
	conn *sql.Conn
	q    querier
	tx   *sql.Tx
}

var _ types.Conn = (*Conn)(nil)
var _ types.Transactor = (*Conn)(nil)

// OpenConn opens the database file at path, creating it if needed.
func OpenConn(ctx context.Context, path string) (*Conn, error) {
	if path == "" {
		return nil, types.ErrPathEmpty
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return &Conn{path: path, db: db, conn: conn, q: conn}, nil
}

// Path returns the database file path.
func (c *Conn) Path() string {
	return c.path
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := c.exec(ctx, stmt, args...)
	return err
}

func (c *Conn) exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	if c.q == nil {
		return nil, types.ErrClosed
	}
	logging.Statement(ctx, stmt)
	res, err := c.q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", stmt, err)
	}
	return res, nil
}

// Select runs the SELECT described by p and materializes the result.
func (c *Conn) Select(ctx context.Context, p types.SelectParams) (*types.Cursor, error) {
	stmt, args, err := query.BuildSelect(p)
	if err != nil {
		return nil, err
	}
	return c.QueryRows(ctx, stmt, args...)
}

// QueryRows runs a raw query and materializes the result.
func (c *Conn) QueryRows(ctx context.Context, stmt string, args ...any) (*types.Cursor, error) {
	if c.q == nil {
		return nil, types.ErrClosed
	}
	logging.Statement(ctx, stmt)
	rows, err := c.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", stmt, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	cur := &types.Cursor{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		cur.Rows = append(cur.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return cur, nil
}

// sortedKeys returns the keys of values in lexical order so statements are
// reproducible.
func sortedKeys(values types.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Insert writes one row and returns its rowid. An empty values map inserts
// a row of defaults. On failure the rowid is -1.
func (c *Conn) Insert(ctx context.Context, table string, values types.Values) (int64, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	var args []any
	if len(values) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		keys := sortedKeys(values)
		args = make([]any, len(keys))
		for i, k := range keys {
			args[i] = values[k]
		}
		sb.WriteString(" (")
		sb.WriteString(naming.QuoteAll(keys, ","))
		sb.WriteString(") VALUES (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","))
		sb.WriteByte(')')
	}
	res, err := c.exec(ctx, sb.String(), args...)
	if err != nil {
		return -1, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return -1, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Update rewrites the rows matching where. ConflictDefault emits a plain
// UPDATE; any other clause emits UPDATE OR <clause>.
func (c *Conn) Update(ctx context.Context, table string, values types.Values, where string, whereArgs []any, onConflict types.ConflictClause) (int64, error) {
	if len(values) == 0 {
		return 0, types.ErrNoValues
	}
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	if onConflict != types.ConflictDefault {
		sb.WriteString("OR ")
		sb.WriteString(string(onConflict))
		sb.WriteByte(' ')
	}
	sb.WriteString(table)
	sb.WriteString(" SET ")
	keys := sortedKeys(values)
	args := make([]any, 0, len(keys)+len(whereArgs))
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(naming.Quote(k))
		sb.WriteString("=?")
		args = append(args, values[k])
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}
	res, err := c.exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the rows matching where; an empty where removes every row.
func (c *Conn) Delete(ctx context.Context, table string, where string, whereArgs []any) (int64, error) {
	stmt := "DELETE FROM " + table
	if where != "" {
		stmt += " WHERE " + where
	} else {
		whereArgs = nil
	}
	res, err := c.exec(ctx, stmt, whereArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TableNames lists the tables in sqlite_master, sorted by name.
func (c *Conn) TableNames(ctx context.Context) ([]string, error) {
	return c.firstColumn(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
}

// ColumnNames lists the columns of table in storage order.
func (c *Conn) ColumnNames(ctx context.Context, table string) ([]string, error) {
	return c.firstColumn(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
}

func (c *Conn) firstColumn(ctx context.Context, stmt string, args ...any) ([]string, error) {
	if c.q == nil {
		return nil, types.ErrClosed
	}
	logging.Statement(ctx, stmt)
	rows, err := c.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", stmt, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Version reads PRAGMA user_version.
func (c *Conn) Version(ctx context.Context) (int, error) {
	if c.q == nil {
		return 0, types.ErrClosed
	}
	var v int
	if err := c.q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// SetVersion writes PRAGMA user_version.
func (c *Conn) SetVersion(ctx context.Context, version int) error {
	return c.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
}

// InTx runs fn inside a transaction on this connection. A Conn that is
// already inside a transaction runs fn directly.
func (c *Conn) InTx(ctx context.Context, fn func(types.Conn) error) error {
	if c.tx != nil {
		return fn(c)
	}
	if c.conn == nil {
		return types.ErrClosed
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	child := &Conn{path: c.path, db: c.db, conn: c.conn, q: tx, tx: tx}
	if err := fn(child); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the connection. Close is idempotent.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	cerr := c.conn.Close()
	derr := c.db.Close()
	c.db, c.conn, c.q = nil, nil, nil
	return errors.Join(cerr, derr)
}

// DeleteFile closes the connection and removes the database file together
// with its journal, WAL and shared-memory files.
func (c *Conn) DeleteFile() error {
	if err := c.Close(); err != nil {
		return err
	}
	return RemoveFiles(c.path)
}

// RemoveFiles removes the database file at path and its companions. Missing
// files are not an error.
func RemoveFiles(path string) error {
	if path == "" || path == MemoryPath {
		return nil
	}
	var errs []error
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
