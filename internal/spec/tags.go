package spec

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/larder/internal/naming"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Struct tag keys understood by the reflection builder.
const (
	tagColumn      = "column"
	tagName        = "name"
	tagPK          = "pk"
	tagNotNull     = "notnull"
	tagUnique      = "unique"
	tagCheck       = "check"
	tagDefault     = "default"
	tagDefaultExpr = "defaultexpr"
	tagCollate     = "collate"
	tagReferences  = "references"
	tagOnDelete    = "ondelete"
	tagOnUpdate    = "onupdate"
	tagDeferrable  = "deferrable"

	tagTable      = "table"
	tagPrimaryKey = "primarykey"
	tagConflict   = "conflict"
	tagForeignKey = "foreignkey"

	tagDatabase = "database"

	tagQuery     = "query"
	tagJoin      = "join"
	tagColumns   = "columns"
	tagSelection = "selection"
	tagArgs      = "args"
	tagGroupBy   = "groupby"
	tagHaving    = "having"
	tagOrderBy   = "orderby"
	tagLimit     = "limit"
	tagOn        = "on"
	tagNatural   = "natural"
)

// splitList splits a comma separated tag value, trimming blanks and dropping
// empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseReferences parses "table(col1,col2)" or "table".
func parseReferences(s string) (table string, cols []string, ok bool) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, nil, s != ""
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	table = strings.TrimSpace(s[:open])
	return table, splitList(s[open+1 : len(s)-1]), table != ""
}

// parseBool treats a present but empty value as true.
func parseBool(s string) (bool, error) {
	if s == "" {
		return true, nil
	}
	return strconv.ParseBool(s)
}

// foreignKeyOptions reads the ondelete, onupdate and deferrable keys.
func foreignKeyOptions(tag reflect.StructTag) (onDelete, onUpdate types.ForeignKeyAction, deferrable bool, err error) {
	if onDelete, err = types.ParseForeignKeyAction(tag.Get(tagOnDelete)); err != nil {
		return
	}
	if onUpdate, err = types.ParseForeignKeyAction(tag.Get(tagOnUpdate)); err != nil {
		return
	}
	if v, ok := tag.Lookup(tagDeferrable); ok {
		deferrable, err = parseBool(v)
	}
	return
}

// typeName returns the qualified name used in error messages.
func typeName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// tableName returns the canonical table name of t.
func tableName(t reflect.Type) string {
	return naming.CanonicalName(t.Name())
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
