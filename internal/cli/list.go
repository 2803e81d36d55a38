package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table>",
		Short: "List the rows of a table",
		Long: `List prints every row of a declared table as JSON, in id order.

Example:
  bindery list users`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			store, err := a.openStore(cat)
			if err != nil {
				return err
			}
			defer store.Detach()

			rel, err := store.Relation(args[0])
			if err != nil {
				if errors.Is(err, types.ErrTableNotFound) {
					return userError(fmt.Errorf("unknown table %q (valid: %v)", args[0], store.Tables()))
				}
				return sysError(err)
			}
			recs, err := rel.All(ctx)
			if err != nil {
				return sysError(fmt.Errorf("list %s: %w", args[0], err))
			}

			rows := make([]map[string]any, 0, len(recs))
			for _, r := range recs {
				rows = append(rows, r.Attributes())
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}
