package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/bindery/internal/paths"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeySchemaFile    = "schema_file"
	cfgKeyTimeZone      = "time_zone"
	cfgKeyLogLevel      = "log_level"
	cfgKeySyncAllowList = "sync_allow_list"

	defaultBackend  = types.BackendSQLite
	defaultTimeZone = "UTC"
	defaultLogLevel = "warn"
)

// envPrefix maps BINDERY_BACKEND, BINDERY_LOG_LEVEL, ... onto config keys.
const envPrefix = "BINDERY"

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# bindery configuration

# Backing store: sqlite or memory
backend: sqlite

# Data directory (optional; overridable by --data-dir)
# data_dir:

# Schema declarations, relative to this directory
schema_file: schema.yaml

# Zone for datetimes without an offset
time_zone: UTC

# debug, info, warn or error
log_level: warn

# Attributes sync may write; empty means every known column
# sync_allow_list: []
`

// settings is the resolved configuration of one CLI run.
type settings struct {
	ConfigDir     string
	Backend       string
	DataDir       string
	SchemaFile    string
	TimeZone      string
	LogLevel      string
	SyncAllowList []string
}

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetDefault(cfgKeyTimeZone, defaultTimeZone)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// resolveSettings applies flag overrides to the loaded configuration.
func resolveSettings(configDir string, v *viper.Viper, f rootFlags) (settings, error) {
	s := settings{
		ConfigDir:     configDir,
		Backend:       v.GetString(cfgKeyBackend),
		TimeZone:      v.GetString(cfgKeyTimeZone),
		LogLevel:      v.GetString(cfgKeyLogLevel),
		SyncAllowList: v.GetStringSlice(cfgKeySyncAllowList),
	}
	if f.logLevel != "" {
		s.LogLevel = f.logLevel
	}

	dataDir, err := paths.ResolveDataDir(f.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}
	s.DataDir = dataDir

	schemaFile, err := paths.ResolveSchemaFile(f.schemaFile, v.GetString(cfgKeySchemaFile), configDir)
	if err != nil {
		return settings{}, fmt.Errorf("resolve schema file: %w", err)
	}
	s.SchemaFile = schemaFile
	return s, nil
}

func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile writes the default config.yaml unless one exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, paths.ConfigFileName)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
