package query

import (
	"strconv"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// BuildSelect assembles p into a SELECT statement and its arguments.
// Having without GroupBy is rejected.
func BuildSelect(p types.SelectParams) (string, []any, error) {
	if p.Having != "" && p.GroupBy == "" {
		return "", nil, types.ErrHavingWithoutGroupBy
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(p.Columns) == 0 {
		sb.WriteByte('*')
	} else {
		sb.WriteString(strings.Join(p.Columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(p.Table)
	if p.Selection != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(p.Selection)
	}
	if p.GroupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(p.GroupBy)
	}
	if p.Having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(p.Having)
	}
	if p.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(p.OrderBy)
	}
	if p.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(p.Limit))
	}
	return sb.String(), p.Args, nil
}
