// Package sqlite implements the SQLite backing store. Tables are created
// from types.TableDef declarations; every table gets an integer primary key
// and one foreign key column per association pointing at it. JSONL export
// and import move the whole store in and out of a directory.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

// dbFile is the database file name inside DataDir.
const dbFile = "bindery.db"

// Backend implements types.Store using SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	defs     map[string]types.TableDef
	fks      map[string][]string
	order    []string
	logger   *slog.Logger
}

// Option configures a Backend.
type Option func(b *Backend)

// WithLogger sets the logger for statements and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		defs:   make(map[string]types.TableDef),
		fks:    make(map[string][]string),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens DataDir/bindery.db, creating DataDir if needed. Existing
// data is kept. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendSQLite {
		return fmt.Errorf("%w: %s", types.ErrBackendUnknown, config.Backend)
	}

	dataDir := config.Dir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFile))
	if err != nil {
		return err
	}
	// One connection keeps writes serialized and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("opening %s: %w", dbFile, err)
	}

	b.db = db
	b.config = config
	b.attached = true
	b.logger.Debug("sqlite attached", slog.String("data_dir", dataDir))

	for _, name := range b.order {
		if err := b.createTableLocked(b.defs[name]); err != nil {
			db.Close()
			b.db = nil
			b.attached = false
			return err
		}
	}
	return nil
}

// Detach closes the database. After Detach, all operations return
// ErrDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// Define declares tables and creates them when attached. Declaring a table
// that already exists adds missing columns but never drops any.
func (b *Backend) Define(defs ...types.TableDef) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	for _, d := range defs {
		if _, ok := b.defs[d.Name]; !ok {
			b.order = append(b.order, d.Name)
		}
		b.defs[d.Name] = d
	}
	for _, d := range defs {
		for _, a := range d.Associations {
			if !slices.Contains(b.fks[a.Table], a.ForeignKey) {
				b.fks[a.Table] = append(b.fks[a.Table], a.ForeignKey)
			}
		}
	}
	if !b.attached {
		return nil
	}
	for _, name := range b.order {
		if err := b.createTableLocked(b.defs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Tables returns the declared table names, sorted.
func (b *Backend) Tables() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.defs))
	for name := range b.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relation returns the relation over every row of table.
// Returns ErrTableNotFound if the name was never declared.
// Returns ErrDetached if the backend is not attached.
func (b *Backend) Relation(table string) (types.Relation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrDetached
	}
	def, ok := b.defs[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, table)
	}
	return &relation{backend: b, def: def}, nil
}
