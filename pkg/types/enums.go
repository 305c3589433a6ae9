package types

import (
	"fmt"
	"strings"
)

// ColumnType is a SQLite storage class. Values render verbatim in DDL.
type ColumnType string

// Storage classes accepted in column declarations.
const (
	Integer ColumnType = "INTEGER"
	Text    ColumnType = "TEXT"
	Blob    ColumnType = "BLOB"
	Real    ColumnType = "REAL"
	Numeric ColumnType = "NUMERIC"
)

// Valid reports whether t is one of the known storage classes.
func (t ColumnType) Valid() bool {
	switch t {
	case Integer, Text, Blob, Real, Numeric:
		return true
	}
	return false
}

// ConflictClause is a SQLite ON CONFLICT resolution. The zero value means
// no clause is emitted.
type ConflictClause string

// Conflict resolutions.
const (
	ConflictDefault  ConflictClause = ""
	ConflictRollback ConflictClause = "ROLLBACK"
	ConflictAbort    ConflictClause = "ABORT"
	ConflictFail     ConflictClause = "FAIL"
	ConflictIgnore   ConflictClause = "IGNORE"
	ConflictReplace  ConflictClause = "REPLACE"
)

// Sortorder is the optional direction of a column primary key.
type Sortorder string

// Sort orders.
const (
	SortDefault Sortorder = ""
	SortAsc     Sortorder = "ASC"
	SortDesc    Sortorder = "DESC"
)

// ForeignKeyAction is an ON DELETE / ON UPDATE action. Values are stored with
// underscores and rendered with spaces.
type ForeignKeyAction string

// Foreign key actions.
const (
	ActionDefault    ForeignKeyAction = ""
	ActionSetNull    ForeignKeyAction = "SET_NULL"
	ActionSetDefault ForeignKeyAction = "SET_DEFAULT"
	ActionCascade    ForeignKeyAction = "CASCADE"
	ActionRestrict   ForeignKeyAction = "RESTRICT"
	ActionNoAction   ForeignKeyAction = "NO_ACTION"
)

// SQL returns the action as it appears in DDL.
func (a ForeignKeyAction) SQL() string {
	return strings.ReplaceAll(string(a), "_", " ")
}

// JoinType selects the join operator of a query. The zero value renders a
// plain JOIN.
type JoinType string

// Join types.
const (
	JoinDefault   JoinType = ""
	JoinInner     JoinType = "INNER"
	JoinLeft      JoinType = "LEFT"
	JoinLeftOuter JoinType = "LEFT OUTER"
	JoinCross     JoinType = "CROSS"
)

// normalizeKeyword upper-cases s and maps spaces and dashes to underscores so
// that "set null", "set-null" and "SET_NULL" parse alike.
func normalizeKeyword(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), "_")
}

// ParseColumnType parses a storage class name, case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	t := ColumnType(normalizeKeyword(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: column type %q", ErrUnknownKeyword, s)
	}
	return t, nil
}

// ParseConflictClause parses a conflict resolution. The empty string and
// "default" yield ConflictDefault.
func ParseConflictClause(s string) (ConflictClause, error) {
	switch c := ConflictClause(normalizeKeyword(s)); c {
	case "", "DEFAULT":
		return ConflictDefault, nil
	case ConflictRollback, ConflictAbort, ConflictFail, ConflictIgnore, ConflictReplace:
		return c, nil
	}
	return "", fmt.Errorf("%w: conflict clause %q", ErrUnknownKeyword, s)
}

// ParseSortorder parses a primary key sort order.
func ParseSortorder(s string) (Sortorder, error) {
	switch o := Sortorder(normalizeKeyword(s)); o {
	case "", "DEFAULT":
		return SortDefault, nil
	case SortAsc, SortDesc:
		return o, nil
	}
	return "", fmt.Errorf("%w: sort order %q", ErrUnknownKeyword, s)
}

// ParseForeignKeyAction parses an ON DELETE / ON UPDATE action.
func ParseForeignKeyAction(s string) (ForeignKeyAction, error) {
	switch a := ForeignKeyAction(normalizeKeyword(s)); a {
	case "", "DEFAULT":
		return ActionDefault, nil
	case ActionSetNull, ActionSetDefault, ActionCascade, ActionRestrict, ActionNoAction:
		return a, nil
	}
	return "", fmt.Errorf("%w: foreign key action %q", ErrUnknownKeyword, s)
}

// ParseJoinType parses a join operator.
func ParseJoinType(s string) (JoinType, error) {
	switch normalizeKeyword(s) {
	case "", "DEFAULT":
		return JoinDefault, nil
	case "INNER":
		return JoinInner, nil
	case "LEFT":
		return JoinLeft, nil
	case "LEFT_OUTER":
		return JoinLeftOuter, nil
	case "CROSS":
		return JoinCross, nil
	}
	return "", fmt.Errorf("%w: join type %q", ErrUnknownKeyword, s)
}
