// Package query compiles query declarations into the parts of a SELECT and
// merges them with runtime filters.
package query

import (
	"strings"

	"github.com/mesh-intelligence/larder/internal/naming"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Compiled is a query resolved against its tables.
type Compiled struct {
	// Table is the FROM expression, including any join.
	Table string
	// Columns is nil when every column is selected.
	Columns []string
	// Defaults holds the query's own filter; nil for the bare-table form.
	Defaults *types.Filter
	// Tables lists the tables read by the query, base table first.
	Tables []string
}

// Compile resolves q. A missing or nameless base or joined table is a
// configuration error. A query that only names its table compiles to the
// bare-table form.
func Compile(q *types.Query) (*Compiled, error) {
	if q == nil {
		return nil, &types.ConfigError{Err: types.ErrNotQuery, Expected: "a query declaration"}
	}
	if isBare(q) {
		return CompileTable(q.Table)
	}
	if err := checkTable(q.Table, "query"); err != nil {
		return nil, err
	}

	base := q.Table.Name
	c := &Compiled{
		Table:   base,
		Columns: union(q.Columns, nil),
		Tables:  []string{base},
	}

	if j := q.Join; j != nil {
		if err := checkTable(j.Table, "join"); err != nil {
			return nil, err
		}
		joined := j.Table.Name
		var sb strings.Builder
		sb.WriteString(base)
		if j.Natural {
			sb.WriteString(" NATURAL")
		}
		if j.Type != types.JoinDefault {
			sb.WriteByte(' ')
			sb.WriteString(string(j.Type))
		}
		sb.WriteString(" JOIN ")
		sb.WriteString(joined)
		if j.On != "" {
			sb.WriteString(" ON (")
			sb.WriteString(naming.Expand(j.On, base, joined))
			sb.WriteByte(')')
		}
		c.Table = sb.String()
		c.Columns = union(q.Columns, j.Columns)
		c.Tables = append(c.Tables, joined)
	}

	c.Defaults = types.NewFilter(0).
		SetSelection(q.Selection, q.SelectionArgs...).
		SetGroupBy(q.GroupBy).
		SetHaving(q.Having).
		SetOrderBy(q.OrderBy).
		SetLimit(q.Limit)
	return c, nil
}

// CompileTable returns the bare-table form: every column, no defaults.
func CompileTable(t *types.Table) (*Compiled, error) {
	if err := checkTable(t, "query"); err != nil {
		return nil, err
	}
	return &Compiled{Table: t.Name, Tables: []string{t.Name}}, nil
}

// Params merges filter over the compiled defaults. A value present in
// filter wins. The selection arguments follow the selection: nil when no
// selection is in effect, otherwise the filter's arguments when it supplies
// any, else the defaults'.
func (c *Compiled) Params(filter *types.Filter) types.SelectParams {
	d := c.Defaults
	p := types.SelectParams{
		Table:     c.Table,
		Columns:   c.Columns,
		Selection: pick(filter.Selection(), d.Selection()),
		GroupBy:   pick(filter.GroupBy(), d.GroupBy()),
		Having:    pick(filter.Having(), d.Having()),
		OrderBy:   pick(filter.OrderBy(), d.OrderBy()),
		Limit:     filter.Limit(),
	}
	if p.Limit == 0 {
		p.Limit = d.Limit()
	}
	if p.Selection != "" {
		if args := filter.SelectionArgs(); args != nil {
			p.Args = args
		} else {
			p.Args = d.SelectionArgs()
		}
	}
	return p
}

func isBare(q *types.Query) bool {
	return q.Columns == nil && q.Join == nil && q.Selection == "" && q.SelectionArgs == nil &&
		q.GroupBy == "" && q.Having == "" && q.OrderBy == "" && q.Limit <= 0
}

func pick(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

func checkTable(t *types.Table, role string) error {
	if t == nil {
		return &types.ConfigError{Err: types.ErrNotTable, Message: role + " table is missing", Expected: "a table declaration"}
	}
	if t.Name == "" {
		return &types.ConfigError{Message: role + " table has no name", Expected: "a named table"}
	}
	return nil
}

// union returns a followed by the entries of b not already seen, dropping
// duplicates. It returns nil when both are empty.
func union(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
