package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mesh-intelligence/bindery/internal/memory"
	"github.com/mesh-intelligence/bindery/internal/schemafile"
	"github.com/mesh-intelligence/bindery/pkg/bind"
	"github.com/mesh-intelligence/bindery/pkg/sqlite"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

// openStore creates the configured backend, attaches it and declares the
// tables of cat. The caller must defer store.Detach().
func (a *app) openStore(cat *schemafile.Catalog) (types.Store, error) {
	var store types.Store
	switch a.settings.Backend {
	case types.BackendSQLite:
		store = sqlite.NewBackend(a.logger)
	case types.BackendMemory:
		store = memory.New()
	default:
		return nil, userError(fmt.Errorf("%w: %q", types.ErrBackendUnknown, a.settings.Backend))
	}

	cfg := types.Config{Backend: a.settings.Backend, DataDir: a.settings.DataDir}
	if err := store.Attach(cfg); err != nil {
		return nil, sysError(fmt.Errorf("attach backend: %w", err))
	}
	if cat != nil {
		if err := store.Define(cat.Tables()...); err != nil {
			store.Detach()
			return nil, userError(fmt.Errorf("define tables: %w", err))
		}
	}
	return store, nil
}

// openSQLite is openStore for commands that need the SQLite backend.
func (a *app) openSQLite(cat *schemafile.Catalog) (*sqlite.Backend, error) {
	if a.settings.Backend != types.BackendSQLite {
		return nil, userError(fmt.Errorf("backend %q does not support this command", a.settings.Backend))
	}
	store, err := a.openStore(cat)
	if err != nil {
		return nil, err
	}
	return store.(*sqlite.Backend), nil
}

// loadCatalog builds the schema file into a fresh registry.
func (a *app) loadCatalog(opts ...schemafile.BuildOption) (*schemafile.Catalog, error) {
	cat, err := schemafile.Load(a.settings.SchemaFile, bind.NewRegistry(), opts...)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, userError(fmt.Errorf("schema file %s not found", a.settings.SchemaFile))
		}
		return nil, userError(err)
	}
	return cat, nil
}

func (a *app) lookupType(cat *schemafile.Catalog, name string) (*bind.Schema, error) {
	s, ok := cat.Schema(name)
	if !ok {
		return nil, userError(fmt.Errorf("unknown type %q (declared: %v)", name, cat.Names()))
	}
	return s, nil
}

// readInput decodes a JSON object from path, or from stdin when path is "-".
func readInput(path string, stdin io.Reader) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, userError(fmt.Errorf("read input: %w", err))
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, userError(fmt.Errorf("parse input: %w", err))
	}
	return params, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
