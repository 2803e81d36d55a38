package bind

import (
	"context"
	"fmt"
)

// Model is a persistent object edited through a mutation.
type Model interface {
	// Attributes returns the model's current field values.
	Attributes() map[string]any
	// Assign sets values on the model without saving.
	Assign(values map[string]any) error
	Save(ctx context.Context) error
}

// NewMutation binds params on top of the model's current values. Fields the
// model knows are copied first, coerced but not permission checked; params
// then overwrite them through the regular setters. Fields still unassigned
// receive their default.
//
// When the schema has no perform action, Call writes the scalar values
// back to the model and saves it.
func (s *Schema) NewMutation(model Model, params map[string]any, opts ...Option) (*Entity, error) {
	if model == nil {
		return nil, fmt.Errorf("%s: nil model", s.name)
	}
	e := s.alloc(params, opts)
	e.model = model
	current := model.Attributes()
	for _, a := range s.Fields() {
		raw, ok := current[a.name]
		if !ok {
			continue
		}
		v, err := a.coerce(raw, e.scope, false)
		if err != nil {
			return nil, err
		}
		if v != nil {
			e.values[a.name] = v
		}
	}
	if err := e.Assign(e.params); err != nil {
		return nil, err
	}
	if s.assign != nil {
		if err := s.assign(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Entity) writeModel(ctx context.Context) error {
	known := e.model.Attributes()
	out := make(map[string]any)
	for _, name := range e.Fields() {
		if _, ok := known[name]; !ok {
			continue
		}
		v := e.values[name]
		if len(nestedEntities(v)) > 0 {
			continue
		}
		out[name] = v
	}
	if err := e.model.Assign(out); err != nil {
		return err
	}
	return e.model.Save(ctx)
}
