// Package schemafile loads database and query declarations from YAML.
//
// A schema file names a database, its version, its tables and any number of
// named queries over those tables:
//
//	name: library
//	version: 2
//	tables:
//	  - name: author
//	    mixins: [id]
//	    columns:
//	      - {name: name, type: TEXT, not_null: true, collate: NOCASE}
//	queries:
//	  - name: authors
//	    table: author
//	    order_by: name
package schemafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Schema is a loaded schema file.
type Schema struct {
	Database *types.Database
	Queries  map[string]*types.Query
}

// QueryNames returns the declared query names in lexical order.
func (s *Schema) QueryNames() []string {
	names := make([]string, 0, len(s.Queries))
	for n := range s.Queries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Query returns the query called name, or nil.
func (s *Schema) Query(name string) *types.Query {
	return s.Queries[name]
}

type fileSchema struct {
	Name    string      `yaml:"name"`
	Version int         `yaml:"version"`
	Tables  []fileTable `yaml:"tables"`
	Queries []fileQuery `yaml:"queries"`
}

type fileTable struct {
	Name         string          `yaml:"name"`
	Mixins       []string        `yaml:"mixins"`
	Temporary    bool            `yaml:"temporary"`
	IfNotExists  bool            `yaml:"if_not_exists"`
	WithoutRowid bool            `yaml:"without_rowid"`
	Columns      []fileColumn    `yaml:"columns"`
	PrimaryKey   *fileKey        `yaml:"primary_key"`
	Unique       []fileKey       `yaml:"unique"`
	Checks       []string        `yaml:"checks"`
	ForeignKeys  []fileReference `yaml:"foreign_keys"`
}

type fileColumn struct {
	Name        string          `yaml:"name"`
	Type        string          `yaml:"type"`
	PrimaryKey  *filePrimaryKey `yaml:"primary_key"`
	Unique      *conflictFlag   `yaml:"unique"`
	NotNull     *conflictFlag   `yaml:"not_null"`
	Check       string          `yaml:"check"`
	Default     *string         `yaml:"default"`
	DefaultExpr string          `yaml:"default_expr"`
	Collate     string          `yaml:"collate"`
	References  *fileReference  `yaml:"references"`
}

type filePrimaryKey struct {
	Sort          string `yaml:"sort"`
	Conflict      string `yaml:"conflict"`
	Autoincrement bool   `yaml:"autoincrement"`
}

type fileKey struct {
	Columns  []string `yaml:"columns"`
	Conflict string   `yaml:"conflict"`
}

type fileReference struct {
	Columns        []string `yaml:"columns"`
	Table          string   `yaml:"table"`
	ForeignColumns []string `yaml:"foreign_columns"`
	OnDelete       string   `yaml:"on_delete"`
	OnUpdate       string   `yaml:"on_update"`
	Deferrable     bool     `yaml:"deferrable"`
}

type fileQuery struct {
	Name      string    `yaml:"name"`
	Table     string    `yaml:"table"`
	Columns   []string  `yaml:"columns"`
	Selection string    `yaml:"selection"`
	Args      []any     `yaml:"args"`
	GroupBy   string    `yaml:"group_by"`
	Having    string    `yaml:"having"`
	OrderBy   string    `yaml:"order_by"`
	Limit     int       `yaml:"limit"`
	Join      *fileJoin `yaml:"join"`
}

type fileJoin struct {
	Table   string   `yaml:"table"`
	Type    string   `yaml:"type"`
	Columns []string `yaml:"columns"`
	On      string   `yaml:"on"`
	Natural bool     `yaml:"natural"`
}

// conflictFlag is a NOT NULL or UNIQUE column constraint. It is written as
// a boolean, a conflict clause name, or a mapping with a conflict key.
type conflictFlag struct {
	set      bool
	conflict string
}

func (f *conflictFlag) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!bool" {
			return n.Decode(&f.set)
		}
		f.set = true
		return n.Decode(&f.conflict)
	case yaml.MappingNode:
		var m struct {
			Conflict string `yaml:"conflict"`
		}
		if err := n.Decode(&m); err != nil {
			return err
		}
		f.set, f.conflict = true, m.Conflict
		return nil
	}
	return fmt.Errorf("line %d: expected a boolean, a conflict clause or a mapping", n.Line)
}

// Load reads and validates the schema file at path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a schema document. Unknown keys are rejected.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f fileSchema
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.Configf("", "empty schema document")
		}
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	return f.build()
}

func (f *fileSchema) build() (*Schema, error) {
	db := &types.Database{Name: f.Name, Version: f.Version}
	for i := range f.Tables {
		tbl, err := f.Tables[i].build()
		if err != nil {
			return nil, err
		}
		db.Tables = append(db.Tables, tbl)
	}
	if err := db.Validate(); err != nil {
		return nil, err
	}

	s := &Schema{Database: db, Queries: make(map[string]*types.Query, len(f.Queries))}
	for i := range f.Queries {
		fq := &f.Queries[i]
		if fq.Name == "" {
			return nil, types.Configf(db.Name, "query %d has no name", i+1)
		}
		if _, dup := s.Queries[fq.Name]; dup {
			return nil, types.Configf(db.Name, "duplicate query %s", fq.Name)
		}
		q, err := fq.build(db)
		if err != nil {
			return nil, err
		}
		s.Queries[fq.Name] = q
	}
	return s, nil
}

func (ft *fileTable) build() (*types.Table, error) {
	tbl := types.NewTable(ft.Name)
	tbl.Temporary = ft.Temporary
	tbl.IfNotExists = ft.IfNotExists
	for _, m := range ft.Mixins {
		switch m {
		case "id":
			tbl.Add(types.IDColumnDef())
		case "timestamp":
			tbl.Add(types.TimestampColumnDef())
		default:
			return nil, &types.ConfigError{Type: ft.Name, Message: "unknown mixin " + m, Expected: "id or timestamp"}
		}
	}
	for i := range ft.Columns {
		col, err := ft.Columns[i].build(ft.Name)
		if err != nil {
			return nil, err
		}
		tbl.Add(col)
	}

	if pk := ft.PrimaryKey; pk != nil {
		cc, err := types.ParseConflictClause(pk.Conflict)
		if err != nil {
			return nil, columnErr(ft.Name, "primary_key", err)
		}
		tbl.Constrain(types.TablePrimaryKey{Columns: pk.Columns, Conflict: cc})
	}
	for _, u := range ft.Unique {
		cc, err := types.ParseConflictClause(u.Conflict)
		if err != nil {
			return nil, columnErr(ft.Name, "unique", err)
		}
		tbl.Constrain(types.TableUnique{Columns: u.Columns, Conflict: cc})
	}
	for _, c := range ft.Checks {
		tbl.Constrain(types.TableCheck{Expression: c})
	}
	for _, fk := range ft.ForeignKeys {
		onDelete, onUpdate, err := fk.actions()
		if err != nil {
			return nil, columnErr(ft.Name, "foreign_keys", err)
		}
		tbl.Constrain(types.TableForeignKey{
			Columns:        fk.Columns,
			ForeignTable:   fk.Table,
			ForeignColumns: fk.ForeignColumns,
			OnDelete:       onDelete,
			OnUpdate:       onUpdate,
			Deferrable:     fk.Deferrable,
		})
	}
	if ft.WithoutRowid {
		tbl.Constrain(types.WithoutRowid{})
	}
	return tbl, nil
}

func (fc *fileColumn) build(table string) (types.Column, error) {
	ct, err := types.ParseColumnType(fc.Type)
	if err != nil {
		return types.Column{}, columnErr(table, fc.Name, err)
	}
	col := types.Column{Name: fc.Name, Type: ct}
	if pk := fc.PrimaryKey; pk != nil {
		so, err := types.ParseSortorder(pk.Sort)
		if err != nil {
			return types.Column{}, columnErr(table, fc.Name, err)
		}
		cc, err := types.ParseConflictClause(pk.Conflict)
		if err != nil {
			return types.Column{}, columnErr(table, fc.Name, err)
		}
		col.PrimaryKey = &types.PrimaryKey{Sortorder: so, Conflict: cc, Autoincrement: pk.Autoincrement}
	}
	if f := fc.Unique; f != nil && f.set {
		cc, err := types.ParseConflictClause(f.conflict)
		if err != nil {
			return types.Column{}, columnErr(table, fc.Name, err)
		}
		col.Unique = &types.Unique{Conflict: cc}
	}
	if f := fc.NotNull; f != nil && f.set {
		cc, err := types.ParseConflictClause(f.conflict)
		if err != nil {
			return types.Column{}, columnErr(table, fc.Name, err)
		}
		col.NotNull = &types.NotNull{Conflict: cc}
	}
	if fc.Check != "" {
		col.Check = &types.Check{Expression: fc.Check}
	}
	switch {
	case fc.DefaultExpr != "":
		col.Default = &types.Default{Value: fc.DefaultExpr, IsExpression: true}
	case fc.Default != nil:
		col.Default = &types.Default{Value: *fc.Default}
	}
	if fc.Collate != "" {
		col.Collate = &types.Collate{Name: fc.Collate}
	}
	if ref := fc.References; ref != nil {
		if ref.Table == "" {
			return types.Column{}, &types.ConfigError{Type: table, Message: "column " + fc.Name + ": references without a table", Expected: "references.table"}
		}
		onDelete, onUpdate, err := ref.actions()
		if err != nil {
			return types.Column{}, columnErr(table, fc.Name, err)
		}
		col.References = &types.ForeignKey{
			ForeignTable:   ref.Table,
			ForeignColumns: ref.ForeignColumns,
			OnDelete:       onDelete,
			OnUpdate:       onUpdate,
			Deferrable:     ref.Deferrable,
		}
	}
	return col, nil
}

func (r *fileReference) actions() (onDelete, onUpdate types.ForeignKeyAction, err error) {
	if onDelete, err = types.ParseForeignKeyAction(r.OnDelete); err != nil {
		return
	}
	onUpdate, err = types.ParseForeignKeyAction(r.OnUpdate)
	return
}

func (fq *fileQuery) build(db *types.Database) (*types.Query, error) {
	base := db.Table(fq.Table)
	if base == nil {
		return nil, &types.ConfigError{Type: fq.Name, Message: "unknown table " + fq.Table, Err: types.ErrNotQuery, Expected: "a table declared in this schema"}
	}
	q := &types.Query{
		Table:         base,
		Columns:       fq.Columns,
		Selection:     fq.Selection,
		SelectionArgs: fq.Args,
		GroupBy:       fq.GroupBy,
		Having:        fq.Having,
		OrderBy:       fq.OrderBy,
		Limit:         fq.Limit,
	}
	if fj := fq.Join; fj != nil {
		joined := db.Table(fj.Table)
		if joined == nil {
			return nil, &types.ConfigError{Type: fq.Name, Message: "unknown join table " + fj.Table, Expected: "a table declared in this schema"}
		}
		jt, err := types.ParseJoinType(fj.Type)
		if err != nil {
			return nil, columnErr(fq.Name, "join", err)
		}
		q.Join = &types.Join{Table: joined, Columns: fj.Columns, On: fj.On, Type: jt, Natural: fj.Natural}
	}
	return q, nil
}

func columnErr(typ, field string, err error) error {
	return &types.ConfigError{Type: typ, Message: field + ": " + err.Error(), Err: err}
}
