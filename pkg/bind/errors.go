package bind

import (
	"errors"
	"fmt"
	"strings"
)

// Schema definition errors. These are returned by Define and Extend and
// stop the entity type from loading.
var (
	ErrUnknownType  = errors.New("unknown type")
	ErrTypeExists   = errors.New("type already registered")
	ErrSchemaExists = errors.New("schema already defined")
	ErrInvalidName  = errors.New("invalid name")
	ErrNestedList   = errors.New("nested list types are not supported")
)

// Runtime errors.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrNotPermitted = errors.New("not permitted")
	ErrInvalid      = errors.New("validation failed")
)

// NotPermittedError reports a denied entity, field or value. Field is empty
// for entity-level denials.
type NotPermittedError struct {
	Schema string
	Field  string
	Value  any
}

func (e *NotPermittedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Schema, ErrNotPermitted)
	}
	if e.Value != nil {
		return fmt.Sprintf("%s.%s: value %v %s", e.Schema, e.Field, e.Value, ErrNotPermitted)
	}
	return fmt.Sprintf("%s.%s: %s", e.Schema, e.Field, ErrNotPermitted)
}

func (e *NotPermittedError) Unwrap() error { return ErrNotPermitted }

// ValidationError carries the field errors collected by a failed validation.
type ValidationError struct {
	Schema string
	Errors Errors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, field := range e.Errors.Fields() {
		parts = append(parts, field+" "+strings.Join(e.Errors[field], ", "))
	}
	return fmt.Sprintf("%s: %s: %s", e.Schema, ErrInvalid, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }
