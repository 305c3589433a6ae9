package types

import "context"

// Values maps column names to the values written by Insert and Update.
// Keys are quoted when the statement is built.
type Values map[string]any

// SelectParams are the resolved parts of a SELECT statement. Columns nil
// selects every column.
type SelectParams struct {
	Table     string
	Columns   []string
	Selection string
	Args      []any
	GroupBy   string
	Having    string
	OrderBy   string
	Limit     int
}

// Cursor holds the materialized result of a SELECT.
type Cursor struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (c *Cursor) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Rows)
}

// Value returns the value of column name in row i, and false when either is
// out of range.
func (c *Cursor) Value(i int, name string) (any, bool) {
	if c == nil || i < 0 || i >= len(c.Rows) {
		return nil, false
	}
	for j, col := range c.Columns {
		if col == name {
			return c.Rows[i][j], true
		}
	}
	return nil, false
}

// Conn is the SQL engine connection consumed by the migration engine and the
// database handle.
type Conn interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error
	// Select runs a SELECT assembled from p.
	Select(ctx context.Context, p SelectParams) (*Cursor, error)
	// Insert writes one row and returns its rowid.
	Insert(ctx context.Context, table string, values Values) (int64, error)
	// Update rewrites matching rows under the given conflict resolution and
	// returns the number of rows changed.
	Update(ctx context.Context, table string, values Values, where string, args []any, onConflict ConflictClause) (int64, error)
	// Delete removes matching rows and returns the number removed.
	Delete(ctx context.Context, table string, where string, args []any) (int64, error)
	// TableNames lists the tables present in the database.
	TableNames(ctx context.Context) ([]string, error)
	// ColumnNames lists the columns of a live table in storage order.
	ColumnNames(ctx context.Context, table string) ([]string, error)
	// Version reads the schema version, 0 for a fresh database.
	Version(ctx context.Context) (int, error)
	// SetVersion writes the schema version.
	SetVersion(ctx context.Context, version int) error
}

// Transactor is implemented by connections that can run a function inside a
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(Conn) error) error
}
