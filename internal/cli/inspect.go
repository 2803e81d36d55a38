package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/bindery/pkg/bind"
)

func newInspectCmd(a *app) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "inspect <type> [field]",
		Short: "Describe the fields of a type as seen by a scope",
		Long: `Inspect prints, for each field of a declared type, its type, whether
it is a list, its default, whether it is required, whether the scope may set
it and which values the scope may assign.

Example:
  bindery inspect UserForm
  bindery inspect UserForm country --scope user`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			s, err := a.lookupType(cat, args[0])
			if err != nil {
				return err
			}

			var rows []bind.Inspection
			if len(args) == 2 {
				in, err := s.Inspect(args[1], scope)
				if err != nil {
					return userError(err)
				}
				rows = []bind.Inspection{in}
			} else {
				rows = s.InspectAll(scope)
			}

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tTYPE\tARRAY\tDEFAULT\tREQUIRED\tPERMITTED\tVALUES")
			for _, in := range rows {
				values := "*"
				if in.PermittedValues != nil {
					values = fmt.Sprint(in.PermittedValues)
				}
				def := "-"
				if in.Default != nil {
					def = fmt.Sprint(in.Default)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%t\t%t\t%s\n",
					in.Field, in.Type, in.Array, def, in.Required, in.Permitted, values)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "authorization scope to evaluate permissions for")
	return cmd
}
