// Package memory implements an in-process backing store. Rows live in maps
// guarded by one mutex; nothing is persisted. The store counts lookups and
// reloads per table so callers can assert how a relation was used.
package memory

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

// Store implements types.Store in memory.
type Store struct {
	mu       sync.Mutex
	attached bool
	defs     map[string]types.TableDef
	fks      map[string][]string
	rows     map[string]map[int64]map[string]any
	nextID   map[string]int64
	lookups  map[string]int
	reloads  map[string]int
}

// New returns a detached store.
func New() *Store {
	return &Store{
		defs:    make(map[string]types.TableDef),
		fks:     make(map[string][]string),
		rows:    make(map[string]map[int64]map[string]any),
		nextID:  make(map[string]int64),
		lookups: make(map[string]int),
		reloads: make(map[string]int),
	}
}

// Attach marks the store attached. Existing rows are kept.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.attached = true
	return nil
}

// Detach is idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	return nil
}

// Define declares tables. Foreign key columns named by associations are
// added to the child table.
func (s *Store) Define(defs ...types.TableDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	for _, d := range defs {
		if _, ok := s.defs[d.Name]; ok {
			continue
		}
		s.defs[d.Name] = d
		s.rows[d.Name] = make(map[int64]map[string]any)
	}
	for _, d := range defs {
		for _, a := range d.Associations {
			if !slices.Contains(s.fks[a.Table], a.ForeignKey) {
				s.fks[a.Table] = append(s.fks[a.Table], a.ForeignKey)
			}
		}
	}
	return nil
}

// Tables returns the declared table names, sorted.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relation returns the relation over every row of table.
func (s *Store) Relation(table string) (types.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return nil, types.ErrDetached
	}
	def, ok := s.defs[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, table)
	}
	return &relation{store: s, def: def}, nil
}

// Lookups returns how many FindByIDs calls reached table.
func (s *Store) Lookups(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups[table]
}

// Reloads returns how many Reload calls reached table.
func (s *Store) Reloads(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads[table]
}

// Count returns the number of rows in table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[table])
}

// knownColumn reports whether col is writable on table. Caller holds mu.
func (s *Store) knownColumn(table, col string) bool {
	for _, c := range s.defs[table].Columns {
		if c.Name == col {
			return true
		}
	}
	return slices.Contains(s.fks[table], col)
}

// deleteLocked removes a row and its descendants. Caller holds mu.
func (s *Store) deleteLocked(table string, id int64) {
	for _, a := range s.defs[table].Associations {
		for childID, row := range s.rows[a.Table] {
			if types.IDKey(row[a.ForeignKey]) == types.IDKey(id) {
				s.deleteLocked(a.Table, childID)
			}
		}
	}
	delete(s.rows[table], id)
}

type relation struct {
	store    *Store
	def      types.TableDef
	fk       string
	parentID any
	cache    []types.Record
}

func (r *relation) Name() string { return r.def.Name }

func (r *relation) Fields() []string {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []string
	for _, c := range r.def.Columns {
		if c.Name != r.fk {
			out = append(out, c.Name)
		}
	}
	for _, fk := range r.store.fks[r.def.Name] {
		if fk != r.fk && !slices.Contains(out, fk) {
			out = append(out, fk)
		}
	}
	return out
}

// scoped reports whether row belongs to the relation. Caller holds mu.
func (r *relation) scoped(row map[string]any) bool {
	if r.fk == "" {
		return true
	}
	return types.IDKey(row[r.fk]) == types.IDKey(r.parentID)
}

func (r *relation) FindByIDs(ctx context.Context, ids []any) (map[string]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return nil, types.ErrDetached
	}
	s.lookups[r.def.Name]++
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[types.IDKey(id)] = true
	}
	out := make(map[string]types.Record)
	for id, row := range s.rows[r.def.Name] {
		key := types.IDKey(id)
		if want[key] && r.scoped(row) {
			out[key] = r.newRecord(id, row)
		}
	}
	return out, nil
}

func (r *relation) Create(ctx context.Context, attrs map[string]any) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return nil, types.ErrDetached
	}
	row := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		if !s.knownColumn(r.def.Name, k) {
			return nil, fmt.Errorf("%s.%s: %w", r.def.Name, k, types.ErrUnknownColumn)
		}
		row[k] = v
	}
	if r.fk != "" {
		row[r.fk] = r.parentID
	}
	s.nextID[r.def.Name]++
	id := s.nextID[r.def.Name]
	row["id"] = id
	s.rows[r.def.Name][id] = row
	r.cache = nil
	return r.newRecord(id, row), nil
}

func (r *relation) All(ctx context.Context) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.cache != nil {
		return r.cache, nil
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return nil, types.ErrDetached
	}
	ids := make([]int64, 0)
	for id, row := range s.rows[r.def.Name] {
		if r.scoped(row) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.newRecord(id, s.rows[r.def.Name][id]))
	}
	r.cache = out
	return out, nil
}

func (r *relation) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	r.store.reloads[r.def.Name]++
	r.store.mu.Unlock()
	r.cache = nil
	return nil
}

// newRecord snapshots row. Caller holds mu.
func (r *relation) newRecord(id int64, row map[string]any) *record {
	return &record{store: r.store, def: r.def, id: id, values: maps.Clone(row)}
}

type record struct {
	store   *Store
	def     types.TableDef
	id      int64
	values  map[string]any
	changed bool
	deleted bool
}

func (rec *record) ID() any { return rec.id }

func (rec *record) Attributes() map[string]any { return maps.Clone(rec.values) }

func (rec *record) Assign(attrs map[string]any) error {
	rec.store.mu.Lock()
	defer rec.store.mu.Unlock()
	for k := range attrs {
		if !rec.store.knownColumn(rec.def.Name, k) {
			return fmt.Errorf("%s.%s: %w", rec.def.Name, k, types.ErrUnknownColumn)
		}
	}
	for k, v := range attrs {
		if old, ok := rec.values[k]; ok && sameValue(old, v) {
			continue
		}
		rec.values[k] = v
		rec.changed = true
	}
	return nil
}

func (rec *record) HasChanges() bool { return rec.changed }

func (rec *record) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := rec.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return types.ErrDetached
	}
	if rec.deleted {
		return types.ErrRecordDeleted
	}
	if _, ok := s.rows[rec.def.Name][rec.id]; !ok {
		return fmt.Errorf("%s %d: %w", rec.def.Name, rec.id, types.ErrNotFound)
	}
	s.rows[rec.def.Name][rec.id] = maps.Clone(rec.values)
	rec.changed = false
	return nil
}

func (rec *record) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := rec.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return types.ErrDetached
	}
	if _, ok := s.rows[rec.def.Name][rec.id]; !ok {
		return fmt.Errorf("%s %d: %w", rec.def.Name, rec.id, types.ErrNotFound)
	}
	s.deleteLocked(rec.def.Name, rec.id)
	rec.deleted = true
	return nil
}

func (rec *record) Child(name string) (types.Relation, error) {
	a, ok := rec.def.Association(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", rec.def.Name, name, types.ErrUnknownAssociation)
	}
	s := rec.store
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[a.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, a.Table)
	}
	return &relation{store: s, def: def, fk: a.ForeignKey, parentID: rec.id}, nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
