package types

import (
	"errors"
	"fmt"
)

// Configuration errors. These are programmer contract violations in schema
// or query declarations and are never retried.
var (
	ErrConfig         = errors.New("invalid schema declaration")
	ErrNotTable       = errors.New("type does not declare a table")
	ErrNotDatabase    = errors.New("type does not declare a database")
	ErrNotQuery       = errors.New("type does not declare a query")
	ErrSpecMismatch   = errors.New("precompiled spec has the wrong type")
	ErrUnknownKeyword = errors.New("unknown keyword")
)

// Database lifecycle and execution errors.
var (
	ErrClosed               = errors.New("database is closed")
	ErrDowngrade            = errors.New("on-disk schema version is newer than declared")
	ErrHavingWithoutGroupBy = errors.New("having clause requires a group by clause")
	ErrNoValues             = errors.New("no values to write")
	ErrPathEmpty            = errors.New("database path must not be empty")
	ErrLogLevelUnknown      = errors.New("unknown log level")
	ErrLogFormatUnknown     = errors.New("unknown log format")
)

// ConfigError describes a malformed declaration. It names the offending type
// (or table) and the declaration shape that was expected, and unwraps to
// ErrConfig unless a more specific sentinel is set in Err.
type ConfigError struct {
	Type     string // Declaring type or table name.
	Expected string // Declaration shape that was expected, if known.
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Type != "" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Expected != "" {
		msg = fmt.Sprintf("%s (expected %s)", msg, e.Expected)
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}

// Configf returns a ConfigError for typ with a formatted message.
func Configf(typ, format string, args ...any) *ConfigError {
	return &ConfigError{Type: typ, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is, or wraps, a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
