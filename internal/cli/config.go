package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/larder/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyDataDir      = "data_dir"
	cfgKeyForeignKeys  = "foreign_keys"
	cfgKeyMigrateInTx  = "migrate_in_tx"
	cfgKeyWithoutRowid = "without_rowid"
	cfgKeyLogLevel     = "log_level"
	cfgKeyLogFormat    = "log_format"

	envPrefix = "LARDER"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# larder configuration

# Data directory holding one <name>.db file per database
# (optional; overridable by --data-dir and LARDER_DATA_DIR)
# data_dir:

# Enforce foreign keys on every connection
foreign_keys: true

# Run create and upgrade inside one transaction
migrate_in_tx: true

# Emit WITHOUT ROWID for tables that request it
without_rowid: true

# debug, info, warn or error (LARDER_LOG_LEVEL overrides)
log_level: warn

# text or json
log_format: text
`

// Settings is the resolved CLI configuration.
type Settings struct {
	ConfigDir    string
	DataDir      string
	ForeignKeys  bool
	MigrateInTx  bool
	WithoutRowid bool
	LogLevel     string
	LogFormat    string
}

// Config returns the handle configuration for the database file at path.
// The logging keys are left empty: setup has already installed the logger
// on the command's stderr.
func (s *Settings) Config(path string) types.Config {
	return types.Config{
		Path:                  path,
		ForeignKeys:           s.ForeignKeys,
		MigrateInTx:           s.MigrateInTx,
		WithoutRowidSupported: s.WithoutRowid,
	}
}

// loadSettings reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run.
func loadSettings(configDir string) (*Settings, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, sysErrorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, sysErrorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyForeignKeys, true)
	v.SetDefault(cfgKeyMigrateInTx, true)
	v.SetDefault(cfgKeyWithoutRowid, true)
	v.SetDefault(cfgKeyLogLevel, types.LogLevelWarn)
	v.SetDefault(cfgKeyLogFormat, types.LogFormatText)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	if err := v.BindEnv(cfgKeyLogLevel); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Settings{
		ConfigDir:    configDir,
		DataDir:      v.GetString(cfgKeyDataDir),
		ForeignKeys:  v.GetBool(cfgKeyForeignKeys),
		MigrateInTx:  v.GetBool(cfgKeyMigrateInTx),
		WithoutRowid: v.GetBool(cfgKeyWithoutRowid),
		LogLevel:     v.GetString(cfgKeyLogLevel),
		LogFormat:    v.GetString(cfgKeyLogFormat),
	}, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
