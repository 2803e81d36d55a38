package bind

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// TypeSpec describes the semantic type of a field: a registered TypeName,
// a List of another spec, a nested *Schema, or a custom CoerceFunc.
type TypeSpec interface {
	typeSpec()
}

// TypeName names a coercion registered in the process-wide type registry.
type TypeName string

// Built-in type names.
const (
	TypeInteger  TypeName = "integer"
	TypeFloat    TypeName = "float"
	TypeString   TypeName = "string"
	TypeBoolean  TypeName = "boolean"
	TypeSymbol   TypeName = "symbol"
	TypeDate     TypeName = "date"
	TypeDateTime TypeName = "datetime"
	TypeDecimal  TypeName = "decimal"
	TypeMap      TypeName = "map"
	TypeAny      TypeName = "any"
)

func (TypeName) typeSpec() {}

// List declares an array field whose elements have type Elem.
type List struct {
	Elem TypeSpec
}

func (List) typeSpec() {}

// ListOf is shorthand for List{Elem: elem}.
func ListOf(elem TypeSpec) List {
	return List{Elem: elem}
}

// CoerceFunc converts a non-nil raw value into a field value. It must not
// panic on malformed input.
type CoerceFunc func(value any) any

func (CoerceFunc) typeSpec() {}

// Symbol is the value type of symbol fields.
type Symbol string

var typeRegistry = struct {
	sync.RWMutex
	coercers map[TypeName]CoerceFunc
}{
	coercers: map[TypeName]CoerceFunc{
		TypeInteger:  coerceInteger,
		TypeFloat:    coerceFloat,
		TypeString:   coerceString,
		TypeBoolean:  coerceBoolean,
		TypeSymbol:   coerceSymbol,
		TypeDate:     coerceDate,
		TypeDateTime: coerceDateTime,
		TypeDecimal:  coerceDecimal,
		TypeMap:      coerceMap,
		TypeAny:      func(v any) any { return v },
	},
}

// RegisterType adds a named coercion to the registry. It is meant to be
// called at process start, before schemas that use the name are defined.
// Returns ErrTypeExists if the name is taken.
func RegisterType(name TypeName, fn CoerceFunc) error {
	if name == "" || fn == nil {
		return ErrInvalidName
	}
	typeRegistry.Lock()
	defer typeRegistry.Unlock()
	if _, ok := typeRegistry.coercers[name]; ok {
		return fmt.Errorf("%w: %s", ErrTypeExists, name)
	}
	typeRegistry.coercers[name] = fn
	return nil
}

// LookupType returns the coercion registered under name.
func LookupType(name TypeName) (CoerceFunc, bool) {
	typeRegistry.RLock()
	defer typeRegistry.RUnlock()
	fn, ok := typeRegistry.coercers[name]
	return fn, ok
}

// Coerce converts value into the type described by t. List types coerce
// element-wise; nil becomes an empty list.
func Coerce(t TypeSpec, value any) (any, error) {
	if l, ok := t.(List); ok {
		a, err := newAttribute("value", l, nil)
		if err != nil {
			return nil, err
		}
		return a.Coerce(value)
	}
	conv, err := resolve(t)
	if err != nil {
		return nil, err
	}
	return coerceValue(t, conv, value, nil)
}

// resolve returns the registered coercion for a TypeName. Other specs coerce
// without a registry entry and resolve to nil.
func resolve(t TypeSpec) (CoerceFunc, error) {
	switch x := t.(type) {
	case TypeName:
		fn, ok := LookupType(x)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(x))
		}
		return fn, nil
	case *Schema:
		if x == nil {
			return nil, fmt.Errorf("%w: nil schema", ErrUnknownType)
		}
		return nil, nil
	case CoerceFunc:
		if x == nil {
			return nil, fmt.Errorf("%w: nil coercion", ErrUnknownType)
		}
		return nil, nil
	case List:
		return nil, ErrNestedList
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, t)
	}
}

// coerceValue converts a single (non-array) value. scope is handed to nested
// entities so their own permission rules see the caller's scope.
func coerceValue(t TypeSpec, conv CoerceFunc, v any, scope any) (any, error) {
	switch x := t.(type) {
	case *Schema:
		return x.coerceNested(v, scope)
	case CoerceFunc:
		if v == nil {
			return nil, nil
		}
		return x(v), nil
	default:
		return conv(v), nil
	}
}

func coerceString(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case Symbol:
		return string(x)
	case []byte:
		return string(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func coerceSymbol(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Symbol:
		return x
	}
	return Symbol(coerceString(v).(string))
}

func coerceMap(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return x
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(x), &m); err != nil {
			return nil
		}
		return m
	case []byte:
		return coerceMap(string(x))
	case *Entity:
		return x.Values()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
	}
	return m
}

// toSlice spreads slices and arrays into []any. Strings, byte slices and
// other scalars are not lists.
func toSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case []any:
		return x, true
	case []byte, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toParams converts a raw nested value into an input map.
func toParams(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case *Entity:
		return x.Params(), true
	}
	m, ok := coerceMap(v).(map[string]any)
	return m, ok
}
