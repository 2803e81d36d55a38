package types

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

// Relation is an addressable collection of records of one table, either a
// whole table or the children of one parent record through an association.
// After any write through a relation, a later read through the same
// relation reflects the change.
type Relation interface {
	// Name returns the table name.
	Name() string

	// Fields returns the writable columns of the table. The primary key and
	// the relation's own foreign key are not included.
	Fields() []string

	// FindByIDs loads the records of this relation whose ids are in ids, in
	// one request. The result is keyed by IDKey. Missing ids are absent from
	// the map, not an error.
	FindByIDs(ctx context.Context, ids []any) (map[string]Record, error)

	// Create inserts a record scoped to this relation and returns it.
	// Unknown columns return ErrUnknownColumn.
	Create(ctx context.Context, attrs map[string]any) (Record, error)

	// All returns the records of this relation in id order. Results are
	// cached on the handle until Reload.
	All(ctx context.Context) ([]Record, error)

	// Reload drops any cached state on the handle.
	Reload(ctx context.Context) error
}

// Record is one row of a table.
type Record interface {
	// ID returns the primary key.
	ID() any

	// Attributes returns a copy of the current column values, id included.
	Attributes() map[string]any

	// Assign sets column values in memory. Unknown columns return
	// ErrUnknownColumn.
	Assign(attrs map[string]any) error

	// HasChanges reports whether Assign changed any value since the last
	// load or save.
	HasChanges() bool

	// Save persists assigned values.
	Save(ctx context.Context) error

	// Delete removes the record and, through the associations of its table,
	// its descendants.
	Delete(ctx context.Context) error

	// Child returns the relation of the named association scoped to this
	// record. Returns ErrUnknownAssociation for undeclared names.
	Child(name string) (Relation, error)
}

// Record operation errors.
var (
	ErrNotFound           = errors.New("record not found")
	ErrUnknownColumn      = errors.New("unknown column")
	ErrUnknownAssociation = errors.New("unknown association")
	ErrRecordDeleted      = errors.New("record is deleted")
	ErrInvalidTable       = errors.New("invalid table definition")
)

// IDKey normalizes an id into the string form used to compare ids across
// backends and input types. Integer 7, int64 7 and "7" share a key.
func IDKey(id any) string {
	if id == nil {
		return ""
	}
	s, err := cast.ToStringE(id)
	if err != nil {
		return fmt.Sprint(id)
	}
	return s
}

// Column is one writable column of a table. Type is a bind type name
// (integer, float, string, boolean, ...) and selects the storage affinity.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// AssociationDef links a table to its child table. Child rows carry the
// parent id in ForeignKey.
type AssociationDef struct {
	Name       string `json:"name" yaml:"name"`
	Table      string `json:"table" yaml:"table"`
	ForeignKey string `json:"foreign_key" yaml:"foreign_key"`
}

// TableDef declares one table.
type TableDef struct {
	Name         string           `json:"name" yaml:"name"`
	Columns      []Column         `json:"columns" yaml:"columns"`
	Associations []AssociationDef `json:"associations" yaml:"associations"`
}

// ColumnNames returns the declared column names in order.
func (d TableDef) ColumnNames() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Association returns the association named name.
func (d TableDef) Association(name string) (AssociationDef, bool) {
	for _, a := range d.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return AssociationDef{}, false
}

// Validate checks names and rejects duplicate or reserved columns. It does
// not check that associated tables exist.
func (d TableDef) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidTable)
	}
	seen := map[string]bool{"id": true}
	for _, c := range d.Columns {
		if c.Name == "" || seen[c.Name] {
			return fmt.Errorf("%w: %s: bad column %q", ErrInvalidTable, d.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, a := range d.Associations {
		if a.Name == "" || a.Table == "" || a.ForeignKey == "" {
			return fmt.Errorf("%w: %s: incomplete association %q", ErrInvalidTable, d.Name, a.Name)
		}
	}
	return nil
}
