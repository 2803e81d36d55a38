package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/bindery/internal/schemafile"
	"github.com/mesh-intelligence/bindery/pkg/bind"
	"github.com/mesh-intelligence/bindery/pkg/reconcile"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

// syncResult is the JSON output of sync.
type syncResult struct {
	Type   string            `json:"type"`
	RunID  string            `json:"run_id,omitempty"`
	Valid  bool              `json:"valid"`
	Errors bind.Errors       `json:"errors,omitempty"`
	Report *reconcile.Report `json:"report,omitempty"`
}

func newSyncCmd(a *app) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "sync <type> <input.json|->",
		Short: "Bind an input document and reconcile it with the store",
		Long: `Sync binds the JSON object in the input file (or stdin for "-") to the
declared type, validates it, checks the scope's permissions and reconciles
the entity tree with the type's table. Records with an id are updated,
records with an id and "_destroy" are deleted and the rest are created.

Example:
  bindery sync UserForm user.json --scope admin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, args[0], args[1], scope)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "authorization scope the input is bound with")
	return cmd
}

func (a *app) runSync(cmd *cobra.Command, typeName, input, scope string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []reconcile.Option
	opts = append(opts, reconcile.WithLogger(a.logger))
	if len(a.settings.SyncAllowList) > 0 {
		opts = append(opts, reconcile.WithAllowList(a.settings.SyncAllowList...))
	}
	rec := reconcile.New(opts...)

	var store types.Store
	var report *reconcile.Report
	perform := func(_, table string) func(context.Context, *bind.Entity) error {
		return func(ctx context.Context, e *bind.Entity) error {
			rel, err := store.Relation(table)
			if err != nil {
				return err
			}
			rep, err := rec.Sync(ctx, rel, e)
			report = &rep
			return err
		}
	}

	cat, err := a.loadCatalog(schemafile.WithPerform(perform))
	if err != nil {
		return err
	}
	s, err := a.lookupType(cat, typeName)
	if err != nil {
		return err
	}
	if _, ok := cat.Table(typeName); !ok {
		return userError(fmt.Errorf("type %q has no table", typeName))
	}

	params, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	store, err = a.openStore(cat)
	if err != nil {
		return err
	}
	defer store.Detach()

	e, err := s.New(params, bind.WithScope(scope), bind.WithLogger(a.logger))
	if err != nil {
		return classify(err)
	}
	ok, err := e.Call(ctx)
	if err != nil {
		return classify(err)
	}

	res := syncResult{Type: typeName, RunID: e.RunID(), Valid: ok, Report: report}
	if !ok {
		res.Errors = e.Errors()
	}
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		if err := writeJSON(out, res); err != nil {
			return sysError(err)
		}
	} else if ok && report != nil {
		fmt.Fprintf(out, "created %d, updated %d, deleted %d, unchanged %d\n",
			report.Created, report.Updated, report.Deleted, report.Unchanged)
	} else {
		for _, field := range res.Errors.Fields() {
			fmt.Fprintf(out, "%s: %v\n", field, res.Errors.On(field))
		}
	}
	if !ok {
		return userError(&bind.ValidationError{Schema: s.Name(), Errors: res.Errors})
	}
	return nil
}

// classify maps binding and store errors to exit codes.
func classify(err error) error {
	switch {
	case errors.Is(err, bind.ErrNotPermitted),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrUnknownColumn),
		errors.Is(err, types.ErrUnknownAssociation):
		return userError(err)
	default:
		return sysError(err)
	}
}
