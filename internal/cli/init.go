package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize bindery storage",
		Long:  "Create the configuration and data directories, then create the tables declared by the schema file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			store, err := a.openStore(cat)
			if err != nil {
				return err
			}
			if err := store.Detach(); err != nil {
				return sysError(fmt.Errorf("finalize storage: %w", err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "bindery initialized successfully")
			fmt.Fprintln(out, "  config:", a.settings.ConfigDir)
			fmt.Fprintln(out, "  data:  ", a.settings.DataDir)
			fmt.Fprintln(out, "  tables:", store.Tables())
			return nil
		},
	}
}
