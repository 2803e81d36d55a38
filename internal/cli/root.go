// Package cli implements the bindery command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/bindery/internal/paths"
	"github.com/mesh-intelligence/bindery/pkg/bind"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir  string
	dataDir    string
	schemaFile string
	logLevel   string
	jsonMode   bool
}

// app is the state one command run shares between PersistentPreRunE and
// the subcommand.
type app struct {
	flags    rootFlags
	settings settings
	logger   *slog.Logger
}

// NewRootCmd creates the top-level "bindery" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bindery",
		Short: "Bind untrusted input to typed schemas and sync it into a store",
		Long: `bindery coerces input documents against declared types, checks
per-scope permissions, validates nested entities and reconciles the result
with a SQLite store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.bindery)")
	root.PersistentFlags().StringVar(&a.flags.schemaFile, "schema", "", "schema file (default: <config-dir>/schema.yaml)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bindery:", err)
		os.Exit(exitCode(err))
	}
}

// setup loads the configuration and installs the logger and time zone.
func (a *app) setup(stderr io.Writer) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	s, err := resolveSettings(configDir, v, a.flags)
	if err != nil {
		return sysError(err)
	}
	a.settings = s

	level, err := parseLevel(s.LogLevel)
	if err != nil {
		return userError(err)
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return userError(fmt.Errorf("time_zone %q: %w", s.TimeZone, err))
	}
	bind.SetTimeZone(loc)
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

// exitErr carries the process exit code of a failed command.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }

func (e *exitErr) Unwrap() error { return e.err }

func userError(err error) error { return &exitErr{code: exitUserError, err: err} }

func sysError(err error) error { return &exitErr{code: exitSysError, err: err} }

// exitCode maps an error to an exit code. Errors without an explicit code
// come from cobra argument parsing and count as user errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var e *exitErr
	if errors.As(err, &e) {
		return e.code
	}
	return exitUserError
}
