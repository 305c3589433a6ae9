// Package ddl compiles table declarations into SQLite DDL and builds the
// auxiliary statements used by schema migration.
package ddl

import (
	"strings"

	"github.com/mesh-intelligence/larder/internal/naming"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// TempPrefix is prepended to a table name to build its migration copy.
const TempPrefix = "_"

// Statement is a compiled CREATE TABLE statement.
type Statement struct {
	SQL     string
	Name    string   // table name without the temporary prefix
	Columns []string // column names in declaration order
}

// Options controls platform-dependent parts of the output.
type Options struct {
	// WithoutRowid emits WITHOUT ROWID for tables that request it.
	WithoutRowid bool
}

// Compiler builds CREATE TABLE statements under a fixed set of options.
type Compiler struct {
	opts Options
}

// NewCompiler returns a compiler for opts.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// BuildCreateTable compiles table with WITHOUT ROWID support enabled.
func BuildCreateTable(table *types.Table, useTemporaryPrefix bool) (*Statement, error) {
	return NewCompiler(Options{WithoutRowid: true}).BuildCreateTable(table, useTemporaryPrefix)
}

// BuildCreateTable validates table and compiles it. When useTemporaryPrefix
// is set the created table is named TempPrefix + table.Name. The output
// depends only on the declaration and the compiler options.
func (c *Compiler) BuildCreateTable(table *types.Table, useTemporaryPrefix bool) (*Statement, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if table.Temporary {
		sb.WriteString("TEMPORARY ")
	}
	sb.WriteString("TABLE ")
	if table.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	if useTemporaryPrefix {
		sb.WriteString(TempPrefix)
	}
	sb.WriteString(table.Name)
	sb.WriteString(" (")

	for i := range table.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeColumn(&sb, &table.Columns[i])
	}
	for _, tc := range table.Constraints {
		writeTableConstraint(&sb, tc)
	}

	sb.WriteByte(')')
	if c.opts.WithoutRowid && table.WithoutRowid() {
		sb.WriteString(" WITHOUT ROWID")
	}

	return &Statement{
		SQL:     sb.String(),
		Name:    table.Name,
		Columns: table.ColumnNames(),
	}, nil
}

func writeColumn(sb *strings.Builder, col *types.Column) {
	sb.WriteString(naming.Quote(col.Name))
	sb.WriteByte(' ')
	sb.WriteString(string(col.Type))

	if pk := col.PrimaryKey; pk != nil {
		sb.WriteString(" PRIMARY KEY")
		if pk.Sortorder != types.SortDefault {
			sb.WriteByte(' ')
			sb.WriteString(string(pk.Sortorder))
		}
		writeConflict(sb, pk.Conflict)
		if pk.Autoincrement {
			sb.WriteString(" AUTOINCREMENT")
		}
	}
	if u := col.Unique; u != nil {
		sb.WriteString(" UNIQUE")
		writeConflict(sb, u.Conflict)
	}
	if nn := col.NotNull; nn != nil {
		sb.WriteString(" NOT NULL")
		writeConflict(sb, nn.Conflict)
	}
	if ck := col.Check; ck != nil {
		sb.WriteString(" CHECK (")
		sb.WriteString(naming.Expand(ck.Expression, col.Name))
		sb.WriteByte(')')
	}
	if d := col.Default; d != nil {
		sb.WriteString(" DEFAULT ")
		if d.IsExpression {
			sb.WriteByte('(')
			sb.WriteString(d.Value)
			sb.WriteByte(')')
		} else {
			sb.WriteString(d.Value)
		}
	}
	if co := col.Collate; co != nil {
		sb.WriteString(" COLLATE ")
		sb.WriteString(co.Name)
	}
	if fk := col.References; fk != nil {
		writeReferences(sb, fk.ForeignTable, fk.ForeignColumns, fk.OnDelete, fk.OnUpdate, fk.Deferrable)
	}
}

func writeTableConstraint(sb *strings.Builder, tc types.TableConstraint) {
	switch c := tc.(type) {
	case types.TablePrimaryKey:
		sb.WriteString(", PRIMARY KEY (")
		sb.WriteString(naming.QuoteAll(c.Columns, ", "))
		sb.WriteByte(')')
		writeConflict(sb, c.Conflict)
	case types.TableUnique:
		sb.WriteString(", UNIQUE (")
		sb.WriteString(naming.QuoteAll(c.Columns, ", "))
		sb.WriteByte(')')
		writeConflict(sb, c.Conflict)
	case types.TableCheck:
		sb.WriteString(", CHECK (")
		sb.WriteString(c.Expression)
		sb.WriteByte(')')
	case types.TableForeignKey:
		sb.WriteString(", FOREIGN KEY (")
		sb.WriteString(naming.QuoteAll(c.Columns, ", "))
		sb.WriteByte(')')
		writeReferences(sb, c.ForeignTable, c.ForeignColumns, c.OnDelete, c.OnUpdate, c.Deferrable)
	}
}

func writeConflict(sb *strings.Builder, cc types.ConflictClause) {
	if cc != types.ConflictDefault {
		sb.WriteString(" ON CONFLICT ")
		sb.WriteString(string(cc))
	}
}

func writeReferences(sb *strings.Builder, table string, cols []string, onDelete, onUpdate types.ForeignKeyAction, deferrable bool) {
	sb.WriteString(" REFERENCES ")
	sb.WriteString(table)
	if len(cols) > 0 {
		sb.WriteString(" (")
		sb.WriteString(naming.QuoteAll(cols, ", "))
		sb.WriteByte(')')
	}
	if onDelete != types.ActionDefault {
		sb.WriteString(" ON DELETE ")
		sb.WriteString(onDelete.SQL())
	}
	if onUpdate != types.ActionDefault {
		sb.WriteString(" ON UPDATE ")
		sb.WriteString(onUpdate.SQL())
	}
	if deferrable {
		sb.WriteString(" DEFERRABLE INITIALLY DEFERRED")
	}
}
