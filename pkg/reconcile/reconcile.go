// Package reconcile synchronizes trees of bound entities with a backing
// store. Each entity either updates an existing record (it carries an id),
// deletes one (id plus a true _destroy marker), or creates a new record.
// Nested entity fields recurse into the matching association of the
// resolved record.
//
// Every list of siblings is resolved with a single FindByIDs call. The
// relation is reloaded once the whole list has been processed.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mesh-intelligence/bindery/pkg/bind"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

// RecordNotFoundError reports an entity id with no matching record.
type RecordNotFoundError struct {
	Relation string
	ID       any
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("%s: id %v: %s", e.Relation, e.ID, types.ErrNotFound)
}

func (e *RecordNotFoundError) Unwrap() error { return types.ErrNotFound }

// Report counts what a reconciliation did across the whole tree.
type Report struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Option configures a Reconciler.
type Option func(r *Reconciler)

// WithAllowList restricts the model attributes written to records at every
// level of the tree. Without it every field the relation knows is eligible.
func WithAllowList(fields ...string) Option {
	return func(r *Reconciler) {
		r.allow = slices.Clone(fields)
	}
}

// WithLogger sets the logger for store writes.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reconciler walks entity trees against relations. It holds no per-call
// state and may be reused.
type Reconciler struct {
	allow  []string
	logger *slog.Logger
}

// New returns a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies entities to rel, depth first and in input order. A store
// error aborts the call; it is wrapped with the relation name and still
// matches with errors.Is. Nothing is rolled back here, so callers needing
// atomicity wrap the call in a transaction.
func (r *Reconciler) Reconcile(ctx context.Context, rel types.Relation, entities []*bind.Entity) (Report, error) {
	var rep Report
	err := r.sync(ctx, rel, entities, &rep)
	return rep, err
}

// Sync is Reconcile for a single root entity.
func (r *Reconciler) Sync(ctx context.Context, rel types.Relation, e *bind.Entity) (Report, error) {
	return r.Reconcile(ctx, rel, []*bind.Entity{e})
}

func (r *Reconciler) sync(ctx context.Context, rel types.Relation, entities []*bind.Entity, rep *Report) error {
	records, err := r.lookup(ctx, rel, entities)
	if err != nil {
		return err
	}

	deleted := make(map[string]bool)
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		model, assoc := partition(e)

		var rec types.Record
		if id := entityID(e); id != nil {
			key := types.IDKey(id)
			rec = records[key]
			if e.MarkedForDestruction() {
				if deleted[key] {
					continue
				}
				deleted[key] = true
				if err := rec.Delete(ctx); err != nil {
					return fmt.Errorf("delete %s %v: %w", rel.Name(), id, err)
				}
				r.logger.Debug("record deleted", slog.String("relation", rel.Name()), slog.Any("id", id))
				rep.Deleted++
				continue
			}
			if err := rec.Assign(r.filter(rel, model)); err != nil {
				return fmt.Errorf("assign %s %v: %w", rel.Name(), id, err)
			}
			if rec.HasChanges() {
				if err := rec.Save(ctx); err != nil {
					return fmt.Errorf("save %s %v: %w", rel.Name(), id, err)
				}
				r.logger.Debug("record updated", slog.String("relation", rel.Name()), slog.Any("id", id))
				rep.Updated++
			} else {
				rep.Unchanged++
			}
		} else {
			rec, err = rel.Create(ctx, r.filter(rel, model))
			if err != nil {
				return fmt.Errorf("create %s: %w", rel.Name(), err)
			}
			r.logger.Debug("record created", slog.String("relation", rel.Name()), slog.Any("id", rec.ID()))
			rep.Created++
		}

		for _, field := range assoc {
			child, err := rec.Child(field)
			if err != nil {
				return err
			}
			if err := r.sync(ctx, child, e.Children(field), rep); err != nil {
				return err
			}
		}
	}

	return rel.Reload(ctx)
}

// lookup loads every record referenced by id in one request and fails on
// the first id without a match, before any entity is applied.
func (r *Reconciler) lookup(ctx context.Context, rel types.Relation, entities []*bind.Entity) (map[string]types.Record, error) {
	var ids []any
	for _, e := range entities {
		if id := entityID(e); id != nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]types.Record{}, nil
	}
	records, err := rel.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", rel.Name(), err)
	}
	for _, id := range ids {
		if _, ok := records[types.IDKey(id)]; !ok {
			return nil, &RecordNotFoundError{Relation: rel.Name(), ID: id}
		}
	}
	return records, nil
}

// entityID returns the id of e, treating a blank string id as absent so
// form rows submitted with an empty id are created.
func entityID(e *bind.Entity) any {
	switch id := e.ID().(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return nil
		}
	case bind.Symbol:
		if strings.TrimSpace(string(id)) == "" {
			return nil
		}
	}
	return e.ID()
}

// partition splits assigned values into model attributes and the names of
// fields holding nested entities. The id and _destroy markers go to
// neither.
func partition(e *bind.Entity) (map[string]any, []string) {
	model := make(map[string]any)
	var assoc []string
	for _, name := range e.Fields() {
		if name == bind.FieldID || name == bind.FieldDestroy {
			continue
		}
		if len(e.Children(name)) > 0 {
			assoc = append(assoc, name)
			continue
		}
		model[name] = e.Get(name)
	}
	return model, assoc
}

// filter keeps the attributes eligible for writing to rel: fields the
// relation knows, narrowed by the allow-list when one is set.
func (r *Reconciler) filter(rel types.Relation, attrs map[string]any) map[string]any {
	known := rel.Fields()
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if !slices.Contains(known, k) {
			continue
		}
		if r.allow != nil && !slices.Contains(r.allow, k) {
			continue
		}
		out[k] = v
	}
	return out
}
