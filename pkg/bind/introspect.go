package bind

import "fmt"

// Inspection is the read-only view of a field that form renderers and
// request binders need.
type Inspection struct {
	Field           string `json:"field"`
	Type            string `json:"type"`
	Array           bool   `json:"array"`
	Default         any    `json:"default,omitempty"`
	Required        bool   `json:"required"`
	Permitted       bool   `json:"permitted"`
	PermittedValues []any  `json:"permitted_values"`
}

// Inspect describes field as seen by scope. Scope-dependent predicates are
// evaluated against an entity bound with no params.
func (s *Schema) Inspect(field string, scope any) (Inspection, error) {
	a, ok := s.fields[field]
	if !ok {
		return Inspection{}, fmt.Errorf("%s.%s: %w", s.name, field, ErrUnknownField)
	}
	probe := s.alloc(nil, []Option{WithScope(scope)})
	required := false
	for _, f := range s.RequiredFields() {
		if f == field {
			required = true
		}
	}
	return Inspection{
		Field:           field,
		Type:            a.TypeName(),
		Array:           a.IsArray(),
		Default:         a.Default(),
		Required:        required,
		Permitted:       probe.AttributePermitted(field),
		PermittedValues: probe.PermittedValues(field),
	}, nil
}

// InspectAll describes every field in declaration order.
func (s *Schema) InspectAll(scope any) []Inspection {
	out := make([]Inspection, 0, len(s.order))
	for _, name := range s.order {
		in, err := s.Inspect(name, scope)
		if err == nil {
			out = append(out, in)
		}
	}
	return out
}
