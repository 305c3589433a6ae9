package types

// Filter is a runtime override of a query's default selection, grouping,
// ordering and limit. A field that is absent leaves the query's default in
// place. Setters normalize their input: an empty string and a non-positive
// limit both mean absent.
//
// ID identifies the filter to the caller; it is not used in SQL.
type Filter struct {
	ID int

	selection     string
	selectionArgs []any
	groupBy       string
	having        string
	orderBy       string
	limit         int
}

// NewFilter returns an empty filter with the given id.
func NewFilter(id int) *Filter {
	return &Filter{ID: id}
}

// SetSelection sets the WHERE clause and its arguments. The arguments are
// kept when selection is empty so they can bind the query's default
// selection.
func (f *Filter) SetSelection(selection string, args ...any) *Filter {
	f.selection = selection
	if len(args) == 0 {
		f.selectionArgs = nil
	} else {
		f.selectionArgs = append([]any(nil), args...)
	}
	return f
}

// SetGroupBy sets the GROUP BY clause.
func (f *Filter) SetGroupBy(groupBy string) *Filter {
	f.groupBy = groupBy
	return f
}

// SetHaving sets the HAVING clause.
func (f *Filter) SetHaving(having string) *Filter {
	f.having = having
	return f
}

// SetOrderBy sets the ORDER BY clause.
func (f *Filter) SetOrderBy(orderBy string) *Filter {
	f.orderBy = orderBy
	return f
}

// SetLimit sets the row limit. Values below one clear it.
func (f *Filter) SetLimit(limit int) *Filter {
	if limit < 1 {
		limit = 0
	}
	f.limit = limit
	return f
}

// Selection returns the WHERE clause, or "" when absent.
func (f *Filter) Selection() string {
	if f == nil {
		return ""
	}
	return f.selection
}

// SelectionArgs returns the WHERE arguments, or nil when absent.
func (f *Filter) SelectionArgs() []any {
	if f == nil {
		return nil
	}
	return f.selectionArgs
}

// GroupBy returns the GROUP BY clause, or "" when absent.
func (f *Filter) GroupBy() string {
	if f == nil {
		return ""
	}
	return f.groupBy
}

// Having returns the HAVING clause, or "" when absent.
func (f *Filter) Having() string {
	if f == nil {
		return ""
	}
	return f.having
}

// OrderBy returns the ORDER BY clause, or "" when absent.
func (f *Filter) OrderBy() string {
	if f == nil {
		return ""
	}
	return f.orderBy
}

// Limit returns the row limit, or 0 when absent.
func (f *Filter) Limit() int {
	if f == nil {
		return 0
	}
	return f.limit
}
