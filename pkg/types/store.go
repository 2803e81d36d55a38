package types

import "errors"

// Store is backend-agnostic access to a set of related tables. Callers
// attach to a backend, declare their tables, obtain relations by table name,
// and detach when done.
type Store interface {
	// Attach connects the Store to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, relation and record operations return ErrDetached.
	Detach() error

	// Define declares tables. Declaring an existing table again is a no-op.
	Define(defs ...TableDef) error

	// Relation returns the relation over every row of table.
	// Returns ErrTableNotFound if the table was never declared.
	Relation(table string) (Relation, error)

	// Tables returns the declared table names, sorted.
	Tables() []string
}

// Store lifecycle errors.
var (
	ErrDetached        = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrTableNotFound   = errors.New("table not found")
)
