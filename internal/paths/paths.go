// Package paths resolves the configuration directory, the data directory
// and the schema file used by the bindery CLI.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative data directory name and the file names inside the config
// directory.
const (
	DefaultDataDirName    = ".bindery"
	ConfigFileName        = "config.yaml"
	DefaultSchemaFileName = "schema.yaml"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir  = "BINDERY_CONFIG_DIR"
	EnvDataDir    = "BINDERY_DATA_DIR"
	EnvSchemaFile = "BINDERY_SCHEMA_FILE"
)

const appName = "bindery"

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/bindery (fallback ~/.config/bindery)
// macOS:   ~/Library/Application Support/bindery
// Windows: %APPDATA%/bindery
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	return userDir()
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/bindery (fallback ~/.local/share/bindery)
// Others:  same as DefaultConfigDir
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	return userDir()
}

func xdgDir(env, fallback string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}

func userDir() (string, error) {
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > BINDERY_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > config value > BINDERY_DATA_DIR env > $(CWD)/.bindery.
func ResolveDataDir(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ResolveSchemaFile returns the schema file following the precedence chain:
// flag > config value > BINDERY_SCHEMA_FILE env > configDir/schema.yaml.
// Relative config values are taken relative to configDir.
func ResolveSchemaFile(flag, configValue, configDir string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		if filepath.IsAbs(configValue) {
			return configValue, nil
		}
		return filepath.Join(configDir, configValue), nil
	}
	if env := os.Getenv(EnvSchemaFile); env != "" {
		return filepath.Abs(env)
	}
	return filepath.Join(configDir, DefaultSchemaFileName), nil
}
