package types

import (
	"github.com/mesh-intelligence/larder/internal/naming"
)

// PrimaryKey marks a column as the table's primary key.
type PrimaryKey struct {
	Sortorder     Sortorder
	Conflict      ConflictClause
	Autoincrement bool
}

// NotNull forbids NULL values in a column.
type NotNull struct {
	Conflict ConflictClause
}

// Unique requires distinct values in a column.
type Unique struct {
	Conflict ConflictClause
}

// Check is a column check expression. Every %s (or %1$s) placeholder is
// replaced by the column name when the DDL is compiled.
type Check struct {
	Expression string
}

// Default is a column default. When IsExpression is set the value is
// emitted in parentheses.
type Default struct {
	Value        string
	IsExpression bool
}

// Collate names the collation sequence of a column.
type Collate struct {
	Name string
}

// ForeignKey is a column-level REFERENCES clause.
type ForeignKey struct {
	ForeignTable   string
	ForeignColumns []string
	OnDelete       ForeignKeyAction
	OnUpdate       ForeignKeyAction
	Deferrable     bool
}

// Column is a single column declaration. Each constraint kind appears at most
// once; a nil pointer means the constraint is absent.
type Column struct {
	// Name is the canonical snake_case identifier used in SQL.
	Name string
	// Declared is the identifier the column was declared under (for example
	// a struct field name). When set it must canonicalize to Name.
	Declared string
	Type     ColumnType

	PrimaryKey *PrimaryKey
	Unique     *Unique
	NotNull    *NotNull
	Check      *Check
	Default    *Default
	Collate    *Collate
	References *ForeignKey
}

// TableConstraint is a table-level constraint. The set of implementations is
// closed: TablePrimaryKey, TableUnique, TableCheck, TableForeignKey and
// WithoutRowid.
type TableConstraint interface {
	tableConstraint()
}

// TablePrimaryKey is a composite primary key.
type TablePrimaryKey struct {
	Columns  []string
	Conflict ConflictClause
}

// TableUnique is a composite unique constraint.
type TableUnique struct {
	Columns  []string
	Conflict ConflictClause
}

// TableCheck is a table check expression. No placeholder substitution is
// applied at this level.
type TableCheck struct {
	Expression string
}

// TableForeignKey is a FOREIGN KEY clause spanning one or more columns.
type TableForeignKey struct {
	Columns        []string
	ForeignTable   string
	ForeignColumns []string
	OnDelete       ForeignKeyAction
	OnUpdate       ForeignKeyAction
	Deferrable     bool
}

// WithoutRowid requests a WITHOUT ROWID table where the platform supports it.
type WithoutRowid struct{}

func (TablePrimaryKey) tableConstraint() {}
func (TableUnique) tableConstraint()     {}
func (TableCheck) tableConstraint()      {}
func (TableForeignKey) tableConstraint() {}
func (WithoutRowid) tableConstraint()    {}

// Table is the declaration of one table.
type Table struct {
	Name        string
	Temporary   bool
	IfNotExists bool
	Columns     []Column
	Constraints []TableConstraint
}

// NewTable returns an empty table declaration named name.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// Add appends columns in declaration order and returns t.
func (t *Table) Add(cols ...Column) *Table {
	t.Columns = append(t.Columns, cols...)
	return t
}

// Constrain appends table-level constraints and returns t.
func (t *Table) Constrain(cs ...TableConstraint) *Table {
	t.Constraints = append(t.Constraints, cs...)
	return t
}

// Column returns the column named name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// WithoutRowid reports whether the table carries the WithoutRowid constraint.
func (t *Table) WithoutRowid() bool {
	for _, c := range t.Constraints {
		if _, ok := c.(WithoutRowid); ok {
			return true
		}
	}
	return false
}

// Validate checks the declaration for configuration errors: an empty name,
// no columns, unknown column types, duplicate or non-canonical column names,
// and table-level key constraints without columns.
func (t *Table) Validate() error {
	if t == nil {
		return &ConfigError{Err: ErrNotTable, Expected: "a table declaration"}
	}
	if t.Name == "" {
		return Configf("", "table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return &ConfigError{Type: t.Name, Message: "table declares no columns", Expected: "at least one column"}
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return Configf(t.Name, "column name must not be empty")
		}
		if c.Declared != "" && naming.CanonicalName(c.Declared) != c.Name {
			return &ConfigError{
				Type:     t.Name,
				Message:  "column " + c.Declared + " does not match its name " + naming.Quote(c.Name),
				Expected: c.Declared + " = " + naming.Quote(naming.CanonicalName(c.Declared)),
			}
		}
		if seen[c.Name] {
			return Configf(t.Name, "duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return Configf(t.Name, "column %s has unknown type %q", c.Name, c.Type)
		}
	}
	for _, tc := range t.Constraints {
		if err := validateConstraint(t.Name, tc); err != nil {
			return err
		}
	}
	return nil
}

func validateConstraint(table string, tc TableConstraint) error {
	var kind string
	var n int
	switch c := tc.(type) {
	case TablePrimaryKey:
		kind, n = "PrimaryKey", len(c.Columns)
	case TableUnique:
		kind, n = "Unique", len(c.Columns)
	case TableForeignKey:
		kind, n = "ForeignKey", len(c.Columns)
	case TableCheck, WithoutRowid:
		return nil
	default:
		return Configf(table, "unsupported table constraint %T", tc)
	}
	if n == 0 {
		return &ConfigError{
			Type:     table,
			Message:  "table constraint " + kind + " declares no columns",
			Expected: "a positive number of columns",
		}
	}
	return nil
}

// Database is the declaration of a versioned set of tables. Nil entries in
// Tables are placeholders and are skipped.
type Database struct {
	Name    string
	Version int
	Tables  []*Table
}

// Declared returns the non-nil tables in declaration order.
func (d *Database) Declared() []*Table {
	tables := make([]*Table, 0, len(d.Tables))
	for _, t := range d.Tables {
		if t != nil {
			tables = append(tables, t)
		}
	}
	return tables
}

// Table returns the declared table named name, or nil.
func (d *Database) Table(name string) *Table {
	for _, t := range d.Declared() {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Validate checks the database name, version and every declared table.
func (d *Database) Validate() error {
	if d == nil {
		return &ConfigError{Err: ErrNotDatabase, Expected: "a database declaration"}
	}
	if d.Name == "" {
		return Configf("", "database name must not be empty")
	}
	if d.Version < 1 {
		return &ConfigError{Type: d.Name, Message: "invalid version", Expected: "version >= 1"}
	}
	seen := make(map[string]bool)
	for _, t := range d.Declared() {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.Name] {
			return Configf(d.Name, "duplicate table %s", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}
