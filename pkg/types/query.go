package types

// Query declares a SELECT over a base table and an optional join. Columns
// lists the columns fetched from Table. The fetched list is Columns followed
// by the join's columns; when both are empty every column is selected
// (SELECT *). The remaining fields are the default filter applied when the
// caller does not override them.
type Query struct {
	Table         *Table
	Columns       []string
	Join          *Join
	Selection     string
	SelectionArgs []any
	GroupBy       string
	Having        string
	OrderBy       string
	Limit         int
}

// Join declares the joined table of a query. On is a template where %1$s is
// the base table name and %2$s the joined table name, for example
// "%1$s.author_id=%2$s._id".
type Join struct {
	Table   *Table
	Columns []string
	On      string
	Type    JoinType
	Natural bool
}
