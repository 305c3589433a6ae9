package types

// Config holds the parameters for opening a database handle.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory
	// database.
	Path string `json:"path" yaml:"path"`
	// ForeignKeys enables foreign key enforcement on the connection.
	ForeignKeys bool `json:"foreign_keys" yaml:"foreign_keys"`
	// MigrateInTx wraps create and upgrade in a single transaction.
	MigrateInTx bool `json:"migrate_in_tx" yaml:"migrate_in_tx"`
	// WithoutRowidSupported emits WITHOUT ROWID for tables that request it.
	WithoutRowidSupported bool `json:"without_rowid" yaml:"without_rowid"`
	// LogLevel, when set, installs the process logger at this level on
	// Open. An empty LogLevel with a LogFormat set means info.
	LogLevel string `json:"log_level" yaml:"log_level"`
	// LogFormat, when set, selects text or JSON output for that logger.
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// Log levels and formats accepted by Validate. The empty string selects the
// default.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatJSON = "json"
	LogFormatText = "text"
)

// DefaultConfig returns the configuration used when only a path is known.
func DefaultConfig(path string) Config {
	return Config{
		Path:                  path,
		ForeignKeys:           true,
		MigrateInTx:           true,
		WithoutRowidSupported: true,
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Path == "" {
		return ErrPathEmpty
	}
	switch c.LogLevel {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return ErrLogLevelUnknown
	}
	switch c.LogFormat {
	case "", LogFormatJSON, LogFormatText:
	default:
		return ErrLogFormatUnknown
	}
	return nil
}
