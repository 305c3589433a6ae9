package types

// WithID contributes the "_id" integer primary key column when embedded
// in a table type.
type WithID struct {
	_id int64 `column:"INTEGER" pk:"asc" notnull:""`
}

// WithCurrentTimestamp contributes a "_timestamp" column that defaults to
// the insertion time in UTC.
type WithCurrentTimestamp struct {
	_timestamp string `column:"TEXT" default:"CURRENT_TIMESTAMP"`
}

// Mixin column names and expressions.
const (
	IDColumn        = "_id"
	TimestampColumn = "_timestamp"
	// TimestampLocaltime renders the timestamp column in local time.
	TimestampLocaltime = "datetime(" + TimestampColumn + ", 'localtime')"
)

// IDColumnDef returns the column declared by WithID.
func IDColumnDef() Column {
	return Column{
		Name:       IDColumn,
		Type:       Integer,
		PrimaryKey: &PrimaryKey{Sortorder: SortAsc},
		NotNull:    &NotNull{},
	}
}

// TimestampColumnDef returns the column declared by WithCurrentTimestamp.
func TimestampColumnDef() Column {
	return Column{
		Name:    TimestampColumn,
		Type:    Text,
		Default: &Default{Value: "CURRENT_TIMESTAMP"},
	}
}
