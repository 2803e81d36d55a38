package bind

import (
	"fmt"
	"log/slog"
	"maps"
)

// Marker fields with a meaning beyond their value.
const (
	FieldID      = "id"
	FieldDestroy = "_destroy"
)

// Entity is a bound instance of a Schema. It keeps the raw input for audit,
// the opaque authorization scope, the coerced values of assigned fields and
// the errors collected by the last validation.
type Entity struct {
	schema *Schema
	params map[string]any
	scope  any
	values map[string]any
	errors Errors
	state  State
	runID  string
	logger *slog.Logger
	model  Model
}

// Option configures an Entity at construction.
type Option func(e *Entity)

// WithScope sets the authorization scope. The scope is never inspected
// except by permission predicates.
func WithScope(scope any) Option {
	return func(e *Entity) { e.scope = scope }
}

// WithLogger sets the logger used by the execution pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(e *Entity) {
		if l != nil {
			e.logger = l
		}
	}
}

// New binds params to the schema. Present keys are coerced and assigned
// through the permission checks; absent keys receive their default. A denied
// non-nil value returns a *NotPermittedError.
func (s *Schema) New(params map[string]any, opts ...Option) (*Entity, error) {
	e := s.alloc(params, opts)
	if err := e.Assign(params); err != nil {
		return nil, err
	}
	if s.assign != nil {
		if err := s.assign(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (s *Schema) alloc(params map[string]any, opts []Option) *Entity {
	if params == nil {
		params = map[string]any{}
	}
	e := &Entity{
		schema: s,
		params: params,
		values: make(map[string]any),
		errors: Errors{},
		state:  StateCreated,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign sets every declared field present in params. Fields absent from
// params that are still unassigned receive their default, if any. Keys that
// are not declared fields are ignored.
func (e *Entity) Assign(params map[string]any) error {
	for _, a := range e.schema.Fields() {
		raw, present := params[a.name]
		if present {
			if err := e.Set(a.name, raw); err != nil {
				return err
			}
			continue
		}
		if _, assigned := e.values[a.name]; assigned {
			continue
		}
		if err := e.applyDefault(a); err != nil {
			return err
		}
	}
	return nil
}

// applyDefault stores the coerced default for an absent field. Absent input
// never raises, so denied defaults are skipped.
func (e *Entity) applyDefault(a *Attribute) error {
	if !a.HasDefault() && !a.array {
		return nil
	}
	v, err := a.coerce(nil, e.scope, false)
	if err != nil {
		return err
	}
	if v == nil || !e.AttributePermitted(a.name) || !e.ValuePermitted(a.name, v) {
		return nil
	}
	e.values[a.name] = v
	return nil
}

// Set coerces raw and stores it through SetIfPermitted. Setting an unknown
// field returns ErrUnknownField.
func (e *Entity) Set(name string, raw any) error {
	a, ok := e.schema.fields[name]
	if !ok {
		return fmt.Errorf("%s.%s: %w", e.schema.name, name, ErrUnknownField)
	}
	v, err := a.coerce(raw, e.scope, false)
	if err != nil {
		return err
	}
	// nil may coerce to a default or an empty list; it still never raises.
	if raw == nil && (!e.AttributePermitted(name) || !e.ValuePermitted(name, v)) {
		return nil
	}
	_, err = e.SetIfPermitted(name, v)
	return err
}

// Get returns the value of field, or nil when it is unassigned.
func (e *Entity) Get(field string) any {
	return e.values[field]
}

// Lookup returns the value of field and whether it is assigned.
func (e *Entity) Lookup(field string) (any, bool) {
	v, ok := e.values[field]
	return v, ok
}

// Has reports whether field is assigned.
func (e *Entity) Has(field string) bool {
	_, ok := e.values[field]
	return ok
}

// Values returns a copy of the assigned values keyed by field name.
func (e *Entity) Values() map[string]any {
	return maps.Clone(e.values)
}

// Fields returns the assigned field names in declaration order.
func (e *Entity) Fields() []string {
	out := make([]string, 0, len(e.values))
	for _, name := range e.schema.order {
		if _, ok := e.values[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// ID returns the value of the id field, or nil.
func (e *Entity) ID() any {
	return e.values[FieldID]
}

// MarkedForDestruction reports whether the _destroy field is true.
func (e *Entity) MarkedForDestruction() bool {
	b, known := CoerceBool(e.values[FieldDestroy])
	return known && b
}

// Children returns the nested entities assigned to field, in order. Scalar
// nested fields yield at most one entity.
func (e *Entity) Children(field string) []*Entity {
	return nestedEntities(e.values[field])
}

func nestedEntities(v any) []*Entity {
	switch x := v.(type) {
	case *Entity:
		return []*Entity{x}
	case []any:
		var out []*Entity
		for _, item := range x {
			if c, ok := item.(*Entity); ok {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

// Params returns the raw input exactly as supplied.
func (e *Entity) Params() map[string]any { return e.params }

// Scope returns the authorization scope.
func (e *Entity) Scope() any { return e.scope }

// Schema returns the entity type.
func (e *Entity) Schema() *Schema { return e.schema }

// Errors returns the errors collected by the last validation.
func (e *Entity) Errors() Errors { return e.errors }

// Model returns the backing model of a mutation, or nil.
func (e *Entity) Model() Model { return e.model }

// Logger returns the entity's logger.
func (e *Entity) Logger() *slog.Logger { return e.logger }
