package bind

import (
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Permitted reports whether the entity passes the schema's entity-level
// admission predicate. Schemas without one admit every entity.
func (e *Entity) Permitted() bool {
	if e.schema.permitted == nil {
		return true
	}
	return e.schema.permitted(e)
}

// Permit returns a *NotPermittedError when Permitted is false.
func (e *Entity) Permit() error {
	if !e.Permitted() {
		return &NotPermittedError{Schema: e.schema.name}
	}
	return nil
}

// AttributePermitted reports whether field may be set for this entity.
// Unknown fields are not permitted.
func (e *Entity) AttributePermitted(field string) bool {
	a, ok := e.schema.fields[field]
	if !ok {
		return false
	}
	if a.permit == nil {
		return true
	}
	return a.permit(e)
}

// PermittedValues returns the allow-list of field. A nil result means every
// value is allowed.
func (e *Entity) PermittedValues(field string) []any {
	a, ok := e.schema.fields[field]
	if !ok || a.permittedValues == nil {
		return nil
	}
	return a.permittedValues(e)
}

// ValuePermitted reports whether every element of value is in the field's
// allow-list. Scalars are checked as a one-element set.
func (e *Entity) ValuePermitted(field string, value any) bool {
	allowed := e.PermittedValues(field)
	if allowed == nil {
		return true
	}
	items, ok := toSlice(value)
	if !ok {
		items = []any{value}
	}
	for _, item := range items {
		if !containsValue(allowed, item) {
			return false
		}
	}
	return true
}

// SetIfPermitted stores an already coerced value. A nil value that fails
// either check is dropped without error; any other denial returns a
// *NotPermittedError.
func (e *Entity) SetIfPermitted(field string, value any) (bool, error) {
	fieldOK := e.AttributePermitted(field)
	valueOK := fieldOK && e.ValuePermitted(field, value)
	if !fieldOK || !valueOK {
		if value == nil {
			return false, nil
		}
		err := &NotPermittedError{Schema: e.schema.name, Field: field}
		if fieldOK {
			err.Value = value
		}
		return false, err
	}
	e.values[field] = value
	return true, nil
}

func containsValue(allowed []any, v any) bool {
	for _, a := range allowed {
		if valuesEqual(a, v) {
			return true
		}
	}
	return false
}

// valuesEqual compares allow-list entries with coerced values. Strings and
// symbols compare by text and numbers by value.
func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return ok && x.Equal(y)
	case Symbol:
		if y, ok := b.(string); ok {
			return string(x) == y
		}
	case string:
		if y, ok := b.(Symbol); ok {
			return x == string(y)
		}
	}
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	return reflect.DeepEqual(a, b)
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
