// Package sqlite provides the public API for the SQLite backing store. It
// exposes the factory while keeping the implementation internal.
package sqlite

import (
	"log/slog"

	"github.com/mesh-intelligence/bindery/internal/sqlite"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

// Backend is the SQLite store. Beyond types.Store it offers Export and
// Import of JSONL table dumps.
type Backend = sqlite.Backend

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend(slog.Default())
//	err := backend.Define(tables...)
//	err = backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".bindery",
//	})
//	defer backend.Detach()
func NewBackend(logger *slog.Logger) *Backend {
	return sqlite.NewBackend(sqlite.WithLogger(logger))
}

var _ types.Store = (*Backend)(nil)
