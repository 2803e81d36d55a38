package bind

import "fmt"

// Attribute is the schema of one field. It is built by Builder.Field and
// never changes once the owning schema is defined.
type Attribute struct {
	name            string
	typ             TypeSpec
	conv            CoerceFunc
	array           bool
	arraySet        bool
	def             any
	defFunc         func() any
	permit          func(e *Entity) bool
	permittedValues func(e *Entity) []any
}

// FieldOption configures an Attribute.
type FieldOption func(a *Attribute)

// Default sets the value used when the input is nil or absent. The default
// is coerced like any other input.
func Default(v any) FieldOption {
	return func(a *Attribute) {
		a.def = v
		a.defFunc = nil
	}
}

// DefaultFunc sets a thunk evaluated each time a default is needed.
func DefaultFunc(fn func() any) FieldOption {
	return func(a *Attribute) {
		a.def = nil
		a.defFunc = fn
	}
}

// Array marks the field as a list (or, with false, forces a scalar even for
// a nested block).
func Array(on bool) FieldOption {
	return func(a *Attribute) {
		a.array = on
		a.arraySet = true
	}
}

// Permit gates whether the field may be set for the entity's scope.
func Permit(fn func(e *Entity) bool) FieldOption {
	return func(a *Attribute) { a.permit = fn }
}

// PermittedValues restricts the values the field accepts. A nil result
// allows every value.
func PermittedValues(fn func(e *Entity) []any) FieldOption {
	return func(a *Attribute) { a.permittedValues = fn }
}

// AllowValues is PermittedValues with a fixed allow-list.
func AllowValues(values ...any) FieldOption {
	return PermittedValues(func(*Entity) []any { return values })
}

func newAttribute(name string, t TypeSpec, opts []FieldOption) (*Attribute, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if t == nil {
		t = TypeString
	}
	a := &Attribute{name: name}
	if l, ok := t.(List); ok {
		t = l.Elem
		a.array = true
	}
	for _, opt := range opts {
		opt(a)
	}
	conv, err := resolve(t)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}
	a.typ = t
	a.conv = conv
	return a, nil
}

// Name returns the field name.
func (a *Attribute) Name() string { return a.name }

// Type returns the element type of the field. For array fields this is the
// type of each element.
func (a *Attribute) Type() TypeSpec { return a.typ }

// TypeName returns a printable name for the field type.
func (a *Attribute) TypeName() string {
	switch t := a.typ.(type) {
	case TypeName:
		return string(t)
	case *Schema:
		return t.Name()
	default:
		return "custom"
	}
}

// IsArray reports whether the field holds a list.
func (a *Attribute) IsArray() bool { return a.array }

// Default returns the configured default, evaluating a thunk if one is set.
func (a *Attribute) Default() any {
	if a.defFunc != nil {
		return a.defFunc()
	}
	return a.def
}

// HasDefault reports whether a default is configured.
func (a *Attribute) HasDefault() bool {
	return a.defFunc != nil || a.def != nil
}

// Nested returns the nested schema when the field type is one.
func (a *Attribute) Nested() (*Schema, bool) {
	s, ok := a.typ.(*Schema)
	return s, ok
}

// Coerce converts a raw value into the field's type. Nested entities are
// built with a nil scope.
func (a *Attribute) Coerce(value any) (any, error) {
	return a.coerce(value, nil, false)
}

func (a *Attribute) coerce(value any, scope any, element bool) (any, error) {
	if value == nil && !element && a.HasDefault() {
		value = a.Default()
	}
	if a.array && !element {
		items, ok := toSlice(value)
		if !ok && value != nil {
			items = []any{value}
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			v, err := a.coerce(item, scope, true)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return coerceValue(a.typ, a.conv, value, scope)
}

// clone returns a shallow copy used when a subtype overlays a parent field.
func (a *Attribute) clone() *Attribute {
	c := *a
	return &c
}
