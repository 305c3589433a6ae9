package ddl

import (
	"strings"

	"github.com/mesh-intelligence/larder/internal/naming"
)

// DropTable returns the statement that drops name.
func DropTable(name string) string {
	return "DROP TABLE " + name
}

// RenameTable returns the statement that renames from to to.
func RenameTable(from, to string) string {
	return "ALTER TABLE " + from + " RENAME TO " + to
}

// CopyRows returns the statement that copies columns of table into its
// migration copy. It returns "" when columns is empty.
func CopyRows(table string, columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	cols := naming.QuoteAll(columns, ",")
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(TempPrefix)
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(cols)
	sb.WriteString(") SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	return sb.String()
}

// Intersect returns the entries of declared that also appear in live, in
// declared order.
func Intersect(declared, live []string) []string {
	present := make(map[string]bool, len(live))
	for _, c := range live {
		present[c] = true
	}
	var out []string
	for _, c := range declared {
		if present[c] {
			out = append(out, c)
		}
	}
	return out
}
