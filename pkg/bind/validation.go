package bind

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Error tags.
const (
	ErrorBlank                  = "blank"
	ErrorInclusion              = "inclusion"
	ErrorTooShort               = "too_short"
	ErrorTooLong                = "too_long"
	ErrorInvalid                = "invalid"
	ErrorNestedValidationFailed = "nested_validation_failed"
)

// Errors maps field names to ordered error tags.
type Errors map[string][]string

// Add appends tag to field.
func (e Errors) Add(field, tag string) {
	e[field] = append(e[field], tag)
}

// On returns the tags of field.
func (e Errors) On(field string) []string { return e[field] }

// Empty reports whether no errors were recorded.
func (e Errors) Empty() bool { return len(e) == 0 }

// Count returns the number of tags across all fields.
func (e Errors) Count() int {
	n := 0
	for _, tags := range e {
		n += len(tags)
	}
	return n
}

// Fields returns the fields with errors, sorted.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for f := range e {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Rule validates an entity and records errors on it.
type Rule interface {
	Check(e *Entity, errs Errors)
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(e *Entity, errs Errors)

// Check calls f.
func (f RuleFunc) Check(e *Entity, errs Errors) { f(e, errs) }

// PresenceRule requires fields to be assigned and not blank.
type PresenceRule struct {
	Fields []string
}

// Presence returns a rule that tags blank fields with "blank".
func Presence(fields ...string) *PresenceRule {
	return &PresenceRule{Fields: fields}
}

// Check implements Rule.
func (r *PresenceRule) Check(e *Entity, errs Errors) {
	for _, f := range r.Fields {
		if isBlank(e.Get(f)) {
			errs.Add(f, ErrorBlank)
		}
	}
}

// Inclusion tags field with "inclusion" when its value is set and not one
// of values.
func Inclusion(field string, values ...any) Rule {
	return RuleFunc(func(e *Entity, errs Errors) {
		v, ok := e.Lookup(field)
		if !ok || v == nil {
			return
		}
		if !containsValue(values, v) {
			errs.Add(field, ErrorInclusion)
		}
	})
}

// Length bounds the length of a string or list field. A max of zero means
// no upper bound. Unassigned fields are skipped.
func Length(field string, minLen, maxLen int) Rule {
	return RuleFunc(func(e *Entity, errs Errors) {
		v, ok := e.Lookup(field)
		if !ok || v == nil {
			return
		}
		n := lengthOf(v)
		switch {
		case n < minLen:
			errs.Add(field, ErrorTooShort)
		case maxLen > 0 && n > maxLen:
			errs.Add(field, ErrorTooLong)
		}
	})
}

// Format tags field with "invalid" when its string form does not match re.
func Format(field string, re *regexp.Regexp) Rule {
	return RuleFunc(func(e *Entity, errs Errors) {
		v, ok := e.Lookup(field)
		if !ok || v == nil {
			return
		}
		if !re.MatchString(fmt.Sprint(v)) {
			errs.Add(field, ErrorInvalid)
		}
	})
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case Symbol:
		return strings.TrimSpace(string(x)) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func lengthOf(v any) int {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x)
	case Symbol:
		return utf8.RuneCountInString(string(x))
	}
	if items, ok := toSlice(v); ok {
		return len(items)
	}
	return utf8.RuneCountInString(fmt.Sprint(v))
}

// RequiredFields lists the fields covered by a presence rule, in
// declaration order.
func (s *Schema) RequiredFields() []string {
	required := make(map[string]bool)
	for _, r := range s.rules {
		if p, ok := r.(*PresenceRule); ok {
			for _, f := range p.Fields {
				required[f] = true
			}
		}
	}
	var out []string
	for _, name := range s.order {
		if required[name] {
			out = append(out, name)
		}
	}
	return out
}

// Valid runs the schema's rules and then validates every nested entity. A
// field holding at least one invalid nested entity gets a single
// nested_validation_failed tag. Errors from a previous run are discarded.
func (e *Entity) Valid() bool {
	errs := Errors{}
	for _, r := range e.schema.rules {
		r.Check(e, errs)
	}
	for _, name := range e.schema.order {
		children := e.Children(name)
		failed := false
		for _, c := range children {
			// Every child is validated so each carries its own errors.
			if !c.Valid() {
				failed = true
			}
		}
		if failed {
			errs.Add(name, ErrorNestedValidationFailed)
		}
	}
	e.errors = errs
	return errs.Empty()
}

// Validate is Valid returning a *ValidationError on failure.
func (e *Entity) Validate() error {
	if e.Valid() {
		return nil
	}
	return &ValidationError{Schema: e.schema.name, Errors: e.errors}
}
