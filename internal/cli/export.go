package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every table to <dir>/<table>.jsonl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			backend, err := a.openSQLite(cat)
			if err != nil {
				return err
			}
			defer backend.Detach()

			if err := backend.Export(args[0]); err != nil {
				return sysError(fmt.Errorf("export: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d tables to %s\n", len(backend.Tables()), args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load <dir>/<table>.jsonl files into the store",
		Long: `Import loads the JSONL files written by export. Rows whose id already
exists are replaced; missing files and malformed lines are skipped. The load
runs in one transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			backend, err := a.openSQLite(cat)
			if err != nil {
				return err
			}
			defer backend.Detach()

			n, err := backend.Import(args[0])
			if err != nil {
				return sysError(fmt.Errorf("import: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows from %s\n", n, args[0])
			return nil
		},
	}
}
