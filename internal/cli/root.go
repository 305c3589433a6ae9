// Package cli implements the larder command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

var flags rootFlags

// settings is loaded from config.yaml before any subcommand runs.
var settings *Settings

// sysError marks a failure of the environment rather than of the input:
// an unreadable directory, a database that cannot be opened.
type sysError struct {
	err error
}

func (e *sysError) Error() string { return e.err.Error() }
func (e *sysError) Unwrap() error { return e.err }

func sysErrorf(format string, args ...any) error {
	return &sysError{err: fmt.Errorf(format, args...)}
}

// NewRootCmd creates the top-level "larder" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "larder",
		Short: "Declarative SQLite schemas and migrations",
		Long: "Larder keeps SQLite database files in step with a declared schema.\n" +
			"Schemas are YAML files; see ddl, migrate and query.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/larder)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: $XDG_DATA_HOME/larder)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log every statement at debug level")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newDDLCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "larder:", err)
		return exitCode(err)
	}
	return exitSuccess
}

func exitCode(err error) int {
	var se *sysError
	if errors.As(err, &se) && !types.IsConfigError(err) {
		return exitSysError
	}
	return exitUserError
}

// setup loads config.yaml, resolves the data directory and installs the
// logger.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return sysErrorf("resolve config dir: %w", err)
	}
	s, err := loadSettings(configDir)
	if err != nil {
		return err
	}
	if s.DataDir, err = paths.ResolveDataDir(flags.dataDir, s.DataDir); err != nil {
		return sysErrorf("resolve data dir: %w", err)
	}

	levelName := s.LogLevel
	if flags.verbose {
		levelName = types.LogLevelDebug
	}
	level, ok := logging.ParseLevel(levelName)
	if !ok {
		return fmt.Errorf("%w: %q", types.ErrLogLevelUnknown, levelName)
	}
	format, ok := logging.ParseFormat(s.LogFormat)
	if !ok {
		return fmt.Errorf("%w: %q", types.ErrLogFormatUnknown, s.LogFormat)
	}
	logging.InitLoggerTo(cmd.ErrOrStderr(), level, format)

	settings = s
	return nil
}
