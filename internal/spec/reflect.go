package spec

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/larder/internal/naming"
	"github.com/mesh-intelligence/larder/pkg/types"
)

const (
	expectTable    = "a struct with column-tagged fields"
	expectDatabase = "a struct with a `database:\"version=N\"` blank field and table fields"
	expectQuery    = "a struct with a `query` tagged table field, or a table type"
)

// tableLoader resolves the table declared by a Go type. The registry passes
// its cached loader; the exported builders use BuildTable directly.
type tableLoader func(reflect.Type) (*types.Table, error)

// BuildTable derives a table declaration from the struct tags of t.
func BuildTable(t reflect.Type) (*types.Table, error) {
	t = indirect(t)
	if t.Kind() != reflect.Struct {
		return nil, &types.ConfigError{Type: typeName(t), Err: types.ErrNotTable, Expected: expectTable}
	}
	tbl := types.NewTable(tableName(t))
	if err := walkTable(t, tbl); err != nil {
		return nil, err
	}
	if len(tbl.Columns) == 0 {
		return nil, &types.ConfigError{Type: typeName(t), Err: types.ErrNotTable, Expected: expectTable}
	}
	if err := tbl.Validate(); err != nil {
		return nil, err
	}
	return tbl, nil
}

// isTableType reports whether t declares at least one column.
func isTableType(t reflect.Type) bool {
	t = indirect(t)
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if _, ok := f.Tag.Lookup(tagColumn); ok {
			return true
		}
		if f.Anonymous && isTableType(f.Type) {
			return true
		}
	}
	return false
}

func walkTable(t reflect.Type, tbl *types.Table) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "_" {
			if err := tableLevel(tbl, f.Tag); err != nil {
				return err
			}
			continue
		}
		if _, ok := f.Tag.Lookup(tagColumn); ok {
			col, err := buildColumn(tbl.Name, f)
			if err != nil {
				return err
			}
			tbl.Add(col)
			continue
		}
		if ft := indirect(f.Type); f.Anonymous && ft.Kind() == reflect.Struct {
			if err := walkTable(ft, tbl); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildColumn(table string, f reflect.StructField) (types.Column, error) {
	tag := f.Tag
	ct, err := types.ParseColumnType(tag.Get(tagColumn))
	if err != nil {
		return types.Column{}, configErr(table, f.Name, err)
	}
	col := types.Column{
		Name:     naming.CanonicalName(f.Name),
		Declared: f.Name,
		Type:     ct,
	}
	if name, ok := tag.Lookup(tagName); ok {
		col.Name = name
	}

	if v, ok := tag.Lookup(tagPK); ok {
		pk := &types.PrimaryKey{}
		for _, opt := range splitList(v) {
			if strings.EqualFold(opt, "autoincrement") {
				pk.Autoincrement = true
				continue
			}
			if so, err := types.ParseSortorder(opt); err == nil {
				pk.Sortorder = so
				continue
			}
			cc, err := types.ParseConflictClause(opt)
			if err != nil {
				return types.Column{}, configErr(table, f.Name, err)
			}
			pk.Conflict = cc
		}
		col.PrimaryKey = pk
	}
	if v, ok := tag.Lookup(tagUnique); ok {
		cc, err := types.ParseConflictClause(v)
		if err != nil {
			return types.Column{}, configErr(table, f.Name, err)
		}
		col.Unique = &types.Unique{Conflict: cc}
	}
	if v, ok := tag.Lookup(tagNotNull); ok {
		cc, err := types.ParseConflictClause(v)
		if err != nil {
			return types.Column{}, configErr(table, f.Name, err)
		}
		col.NotNull = &types.NotNull{Conflict: cc}
	}
	if v, ok := tag.Lookup(tagCheck); ok {
		col.Check = &types.Check{Expression: v}
	}
	if v, ok := tag.Lookup(tagDefault); ok {
		col.Default = &types.Default{Value: v}
	}
	if v, ok := tag.Lookup(tagDefaultExpr); ok {
		col.Default = &types.Default{Value: v, IsExpression: true}
	}
	if v, ok := tag.Lookup(tagCollate); ok {
		col.Collate = &types.Collate{Name: v}
	}
	if v, ok := tag.Lookup(tagReferences); ok {
		ft, cols, ok := parseReferences(v)
		if !ok {
			return types.Column{}, &types.ConfigError{Type: table, Message: "column " + f.Name + ": malformed references " + strconv.Quote(v), Expected: "table(col,...)"}
		}
		onDelete, onUpdate, deferrable, err := foreignKeyOptions(tag)
		if err != nil {
			return types.Column{}, configErr(table, f.Name, err)
		}
		col.References = &types.ForeignKey{
			ForeignTable:   ft,
			ForeignColumns: cols,
			OnDelete:       onDelete,
			OnUpdate:       onUpdate,
			Deferrable:     deferrable,
		}
	}
	return col, nil
}

// tableLevel applies the table-level declarations carried by a blank field.
func tableLevel(tbl *types.Table, tag reflect.StructTag) error {
	if v, ok := tag.Lookup(tagTable); ok {
		for _, opt := range splitList(v) {
			switch strings.ToLower(opt) {
			case "temporary":
				tbl.Temporary = true
			case "if_not_exists", "ifnotexists":
				tbl.IfNotExists = true
			case "without_rowid", "withoutrowid":
				tbl.Constrain(types.WithoutRowid{})
			default:
				return types.Configf(tbl.Name, "unknown table option %q", opt)
			}
		}
	}
	cc, err := types.ParseConflictClause(tag.Get(tagConflict))
	if err != nil {
		return configErr(tbl.Name, "_", err)
	}
	if v, ok := tag.Lookup(tagPrimaryKey); ok {
		tbl.Constrain(types.TablePrimaryKey{Columns: splitList(v), Conflict: cc})
	}
	if v, ok := tag.Lookup(tagUnique); ok {
		tbl.Constrain(types.TableUnique{Columns: splitList(v), Conflict: cc})
	}
	if v, ok := tag.Lookup(tagCheck); ok {
		tbl.Constrain(types.TableCheck{Expression: v})
	}
	if v, ok := tag.Lookup(tagForeignKey); ok {
		ft, cols, ok := parseReferences(tag.Get(tagReferences))
		if !ok {
			return &types.ConfigError{Type: tbl.Name, Message: "foreign key without references", Expected: "references:\"table(col,...)\""}
		}
		onDelete, onUpdate, deferrable, err := foreignKeyOptions(tag)
		if err != nil {
			return configErr(tbl.Name, "_", err)
		}
		tbl.Constrain(types.TableForeignKey{
			Columns:        splitList(v),
			ForeignTable:   ft,
			ForeignColumns: cols,
			OnDelete:       onDelete,
			OnUpdate:       onUpdate,
			Deferrable:     deferrable,
		})
	}
	return nil
}

// BuildDatabase derives a database declaration from the struct tags of t.
func BuildDatabase(t reflect.Type) (*types.Database, error) {
	return buildDatabase(t, BuildTable)
}

func buildDatabase(t reflect.Type, load tableLoader) (*types.Database, error) {
	t = indirect(t)
	if t.Kind() != reflect.Struct {
		return nil, &types.ConfigError{Type: typeName(t), Err: types.ErrNotDatabase, Expected: expectDatabase}
	}
	db := &types.Database{Name: tableName(t)}
	found := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "_" {
			v, ok := f.Tag.Lookup(tagDatabase)
			if !ok {
				continue
			}
			version, err := parseVersion(v)
			if err != nil {
				return nil, &types.ConfigError{Type: typeName(t), Message: err.Error(), Expected: expectDatabase}
			}
			db.Version, found = version, true
			continue
		}
		if f.Tag.Get(tagTable) == "-" || !isTableType(f.Type) {
			continue
		}
		tbl, err := load(f.Type)
		if err != nil {
			return nil, err
		}
		db.Tables = append(db.Tables, tbl)
	}
	if !found {
		return nil, &types.ConfigError{Type: typeName(t), Err: types.ErrNotDatabase, Expected: expectDatabase}
	}
	if err := db.Validate(); err != nil {
		return nil, err
	}
	return db, nil
}

func parseVersion(s string) (int, error) {
	for _, opt := range splitList(s) {
		k, v, _ := strings.Cut(opt, "=")
		if strings.TrimSpace(k) != "version" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid version %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("missing version in %q", s)
}

// BuildQuery derives a query declaration from the struct tags of t. A table
// type yields the bare-table query over it.
func BuildQuery(t reflect.Type) (*types.Query, error) {
	return buildQuery(t, BuildTable)
}

func buildQuery(t reflect.Type, load tableLoader) (*types.Query, error) {
	t = indirect(t)
	if t.Kind() != reflect.Struct {
		return nil, &types.ConfigError{Type: typeName(t), Err: types.ErrNotQuery, Expected: expectQuery}
	}

	var q *types.Query
	var join *types.Join
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if _, ok := f.Tag.Lookup(tagQuery); ok {
			base, err := load(f.Type)
			if err != nil {
				return nil, err
			}
			if q, err = queryFields(typeName(t), base, f.Tag); err != nil {
				return nil, err
			}
			continue
		}
		if v, ok := f.Tag.Lookup(tagJoin); ok {
			jt, err := types.ParseJoinType(v)
			if err != nil {
				return nil, configErr(typeName(t), f.Name, err)
			}
			joined, err := load(f.Type)
			if err != nil {
				return nil, err
			}
			natural := false
			if nv, ok := f.Tag.Lookup(tagNatural); ok {
				if natural, err = parseBool(nv); err != nil {
					return nil, configErr(typeName(t), f.Name, err)
				}
			}
			join = &types.Join{
				Table:   joined,
				Columns: splitList(f.Tag.Get(tagColumns)),
				On:      f.Tag.Get(tagOn),
				Type:    jt,
				Natural: natural,
			}
		}
	}

	if q == nil {
		if join == nil && isTableType(t) {
			base, err := load(t)
			if err != nil {
				return nil, err
			}
			return &types.Query{Table: base}, nil
		}
		return nil, &types.ConfigError{Type: typeName(t), Err: types.ErrNotQuery, Expected: expectQuery}
	}
	q.Join = join
	return q, nil
}

func queryFields(typ string, base *types.Table, tag reflect.StructTag) (*types.Query, error) {
	q := &types.Query{
		Table:     base,
		Columns:   splitList(tag.Get(tagColumns)),
		Selection: tag.Get(tagSelection),
		GroupBy:   tag.Get(tagGroupBy),
		Having:    tag.Get(tagHaving),
		OrderBy:   tag.Get(tagOrderBy),
	}
	for _, a := range splitList(tag.Get(tagArgs)) {
		q.SelectionArgs = append(q.SelectionArgs, a)
	}
	if v := tag.Get(tagLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &types.ConfigError{Type: typ, Message: "invalid limit " + strconv.Quote(v), Expected: "an integer limit"}
		}
		q.Limit = n
	}
	return q, nil
}

func configErr(typ, field string, err error) error {
	return &types.ConfigError{Type: typ, Message: field + ": " + err.Error(), Err: err}
}
