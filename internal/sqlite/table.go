package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

// relation implements types.Relation for one table, optionally scoped to
// the children of one parent row through fk.
type relation struct {
	backend  *Backend
	def      types.TableDef
	fk       string
	parentID int64
	cache    []types.Record
}

func (r *relation) Name() string { return r.def.Name }

// Fields returns the writable columns, leaving out the relation's own
// foreign key.
func (r *relation) Fields() []string {
	r.backend.mu.RLock()
	defer r.backend.mu.RUnlock()
	var out []string
	for _, c := range r.backend.columnsLocked(r.def.Name) {
		if c.Name != r.fk {
			out = append(out, c.Name)
		}
	}
	return out
}

// selectLocked builds a SELECT of every column with the relation's scope
// and an optional extra condition.
func (r *relation) selectLocked(where string) (string, []types.Column, []any) {
	cols := r.backend.columnsLocked(r.def.Name)
	names := []string{"id"}
	for _, c := range cols {
		names = append(names, quoteIdent(c.Name))
	}
	var conds []string
	var args []any
	if r.fk != "" {
		conds = append(conds, quoteIdent(r.fk)+" = ?")
		args = append(args, r.parentID)
	}
	if where != "" {
		conds = append(conds, where)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quoteIdent(r.def.Name))
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q + " ORDER BY id", cols, args
}

func (r *relation) query(ctx context.Context, where string, extra []any) ([]types.Record, error) {
	b := r.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrDetached
	}

	q, cols, args := r.selectLocked(where)
	args = append(args, extra...)
	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", r.def.Name, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var id int64
		raw := make([]any, len(cols))
		dest := []any{&id}
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", r.def.Name, err)
		}
		values := make(map[string]any, len(cols))
		for i, c := range cols {
			v := raw[i]
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			values[c.Name] = v
		}
		out = append(out, &record{backend: b, def: r.def, id: id, values: values})
	}
	return out, rows.Err()
}

// FindByIDs issues one SELECT ... WHERE id IN (...). Ids that are not
// integers cannot match and are skipped.
func (r *relation) FindByIDs(ctx context.Context, ids []any) (map[string]types.Record, error) {
	var keys []any
	for _, id := range ids {
		if n, err := cast.ToInt64E(id); err == nil {
			keys = append(keys, n)
		}
	}
	out := make(map[string]types.Record)
	if len(keys) == 0 {
		return out, nil
	}
	where := "id IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ") + ")"
	recs, err := r.query(ctx, where, keys)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[types.IDKey(rec.ID())] = rec
	}
	return out, nil
}

func (r *relation) Create(ctx context.Context, attrs map[string]any) (types.Record, error) {
	b := r.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil, types.ErrDetached
	}

	values := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		c, ok := b.columnLocked(r.def.Name, k)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", r.def.Name, k, types.ErrUnknownColumn)
		}
		values[k] = toColumnValue(c.Type, v)
	}
	if r.fk != "" {
		values[r.fk] = r.parentID
	}

	var names, marks []string
	var args []any
	for _, c := range b.columnsLocked(r.def.Name) {
		if v, ok := values[c.Name]; ok {
			names = append(names, quoteIdent(c.Name))
			marks = append(marks, "?")
			args = append(args, v)
		}
	}
	var q string
	if len(names) == 0 {
		q = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(r.def.Name))
	} else {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(r.def.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
	}
	res, err := b.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", r.def.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", r.def.Name, err)
	}
	for _, c := range b.columnsLocked(r.def.Name) {
		if _, ok := values[c.Name]; !ok {
			values[c.Name] = nil
		}
	}
	r.cache = nil
	b.logger.Debug("insert", slog.String("table", r.def.Name), slog.Int64("id", id))
	return &record{backend: b, def: r.def, id: id, values: values}, nil
}

// All returns the scoped rows in id order, cached until Reload.
func (r *relation) All(ctx context.Context) ([]types.Record, error) {
	if r.cache != nil {
		return r.cache, nil
	}
	recs, err := r.query(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []types.Record{}
	}
	r.cache = recs
	return recs, nil
}

func (r *relation) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.cache = nil
	return nil
}

// record implements types.Record. values hold column form; changed marks
// columns assigned since the last load or save.
type record struct {
	backend *Backend
	def     types.TableDef
	id      int64
	values  map[string]any
	changed map[string]bool
	deleted bool
}

func (rec *record) ID() any { return rec.id }

func (rec *record) Attributes() map[string]any {
	rec.backend.mu.RLock()
	defer rec.backend.mu.RUnlock()
	out := make(map[string]any, len(rec.values)+1)
	for _, c := range rec.backend.columnsLocked(rec.def.Name) {
		out[c.Name] = fromColumnValue(c.Type, rec.values[c.Name])
	}
	out["id"] = rec.id
	return out
}

func (rec *record) Assign(attrs map[string]any) error {
	b := rec.backend
	b.mu.RLock()
	defer b.mu.RUnlock()

	next := maps.Clone(rec.values)
	changed := make(map[string]bool)
	for k, v := range attrs {
		c, ok := b.columnLocked(rec.def.Name, k)
		if !ok {
			return fmt.Errorf("%s.%s: %w", rec.def.Name, k, types.ErrUnknownColumn)
		}
		cv := toColumnValue(c.Type, v)
		if reflect.DeepEqual(next[k], cv) {
			continue
		}
		next[k] = cv
		changed[k] = true
	}
	rec.values = next
	if rec.changed == nil {
		rec.changed = changed
	} else {
		maps.Copy(rec.changed, changed)
	}
	return nil
}

func (rec *record) HasChanges() bool { return len(rec.changed) > 0 }

// Save writes the changed columns with one UPDATE.
func (rec *record) Save(ctx context.Context) error {
	b := rec.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrDetached
	}
	if rec.deleted {
		return types.ErrRecordDeleted
	}
	if len(rec.changed) == 0 {
		return nil
	}

	var sets []string
	var args []any
	for _, c := range b.columnsLocked(rec.def.Name) {
		if rec.changed[c.Name] {
			sets = append(sets, quoteIdent(c.Name)+" = ?")
			args = append(args, rec.values[c.Name])
		}
	}
	args = append(args, rec.id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(rec.def.Name), strings.Join(sets, ", "))
	res, err := b.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("updating %s %d: %w", rec.def.Name, rec.id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %d: %w", rec.def.Name, rec.id, types.ErrNotFound)
	}
	rec.changed = nil
	b.logger.Debug("update", slog.String("table", rec.def.Name), slog.Int64("id", rec.id))
	return nil
}

// Delete removes the row and its descendants in one transaction.
func (rec *record) Delete(ctx context.Context) error {
	b := rec.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	n, err := b.deleteLocked(ctx, tx, rec.def, rec.id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", rec.def.Name, rec.id, types.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	rec.deleted = true
	b.logger.Debug("delete", slog.String("table", rec.def.Name), slog.Int64("id", rec.id))
	return nil
}

// deleteLocked deletes children depth first, then the row itself, and
// returns the number of rows removed from def's table.
func (b *Backend) deleteLocked(ctx context.Context, tx *sql.Tx, def types.TableDef, id int64) (int64, error) {
	for _, a := range def.Associations {
		child, ok := b.defs[a.Table]
		if !ok {
			continue
		}
		q := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", quoteIdent(a.Table), quoteIdent(a.ForeignKey))
		rows, err := tx.QueryContext(ctx, q, id)
		if err != nil {
			return 0, fmt.Errorf("finding %s of %s %d: %w", a.Name, def.Name, id, err)
		}
		var ids []int64
		for rows.Next() {
			var cid int64
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return 0, err
			}
			ids = append(ids, cid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, err
		}
		for _, cid := range ids {
			if _, err := b.deleteLocked(ctx, tx, child, cid); err != nil {
				return 0, err
			}
		}
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(def.Name)), id)
	if err != nil {
		return 0, fmt.Errorf("deleting %s %d: %w", def.Name, id, err)
	}
	return res.RowsAffected()
}

func (rec *record) Child(name string) (types.Relation, error) {
	a, ok := rec.def.Association(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", rec.def.Name, name, types.ErrUnknownAssociation)
	}
	b := rec.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	def, ok := b.defs[a.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, a.Table)
	}
	return &relation{backend: b, def: def, fk: a.ForeignKey, parentID: rec.id}, nil
}
