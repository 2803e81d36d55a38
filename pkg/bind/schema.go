package bind

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Schema is the immutable description of one entity type: its ordered field
// table, nested types, validation rules, entity-level policy and actions.
// Schemas are built by Define or Extend and sealed before they are returned.
type Schema struct {
	name      string
	parent    *Schema
	fields    map[string]*Attribute
	order     []string
	nested    map[string]*Schema
	rules     []Rule
	permitted func(e *Entity) bool
	perform   func(ctx context.Context, e *Entity) error
	assign    func(e *Entity) error
	sealed    bool
}

func newSchema(name string) *Schema {
	return &Schema{
		name:   name,
		fields: make(map[string]*Attribute),
		nested: make(map[string]*Schema),
	}
}

// Name returns the registered type name. Nested types are named
// Owner.FieldName in camel case.
func (s *Schema) Name() string { return s.name }

// Parent returns the schema this one was extended from, or nil.
func (s *Schema) Parent() *Schema { return s.parent }

func (*Schema) typeSpec() {}

// Declares reports whether the schema has a field with the given name.
func (s *Schema) Declares(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// Field returns the attribute for name.
func (s *Schema) Field(name string) (*Attribute, bool) {
	a, ok := s.fields[name]
	return a, ok
}

// Fields returns the attributes in declaration order. Inherited fields come
// first.
func (s *Schema) Fields() []*Attribute {
	out := make([]*Attribute, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	return slices.Clone(s.order)
}

// NestedSchema returns the nested type of field, whether synthesized by
// Builder.Nested or referenced directly.
func (s *Schema) NestedSchema(field string) (*Schema, bool) {
	a, ok := s.fields[field]
	if !ok {
		return nil, false
	}
	return a.Nested()
}

// Rules returns the validation rules attached to the schema.
func (s *Schema) Rules() []Rule {
	return slices.Clone(s.rules)
}

// HasPerform reports whether the schema defines a perform action.
func (s *Schema) HasPerform() bool { return s.perform != nil }

func (s *Schema) coerceNested(v any, scope any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if e, ok := v.(*Entity); ok && e.schema == s {
		return e, nil
	}
	params, ok := toParams(v)
	if !ok {
		return nil, nil
	}
	return s.New(params, WithScope(scope))
}

// Builder collects field declarations while a schema is being defined. It
// must not be retained after Define returns.
type Builder struct {
	reg    *Registry
	schema *Schema
	err    error
}

func (b *Builder) check() {
	if b.schema.sealed {
		panic(fmt.Sprintf("bind: schema %s is sealed", b.schema.name))
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Field declares a field. Re-declaring a name replaces the attribute but
// keeps its position.
func (b *Builder) Field(name string, t TypeSpec, opts ...FieldOption) *Builder {
	b.check()
	a, err := newAttribute(name, t, opts)
	if err != nil {
		b.fail(fmt.Errorf("%s: %w", b.schema.name, err))
		return b
	}
	b.schema.put(a)
	return b
}

// Nested declares a field whose type is synthesized from fn. The field is a
// list unless Array(false) is given. Declaring the same nested field twice
// extends the same type; an inherited nested field is extended into a new
// type owned by this schema.
func (b *Builder) Nested(name string, fn func(nb *Builder), opts ...FieldOption) *Builder {
	b.check()
	if name == "" {
		b.fail(fmt.Errorf("%s: %w", b.schema.name, ErrInvalidName))
		return b
	}
	ns := b.schema.nested[name]
	switch {
	case ns == nil:
		ns = newSchema(b.schema.name + "." + camelize(name))
	case ns.sealed:
		ns = ns.derive(b.schema.name + "." + camelize(name))
	}
	b.schema.nested[name] = ns
	if fn != nil {
		nb := &Builder{reg: b.reg, schema: ns}
		fn(nb)
		if nb.err != nil {
			b.fail(nb.err)
			return b
		}
	}
	a, err := newAttribute(name, ns, opts)
	if err != nil {
		b.fail(fmt.Errorf("%s: %w", b.schema.name, err))
		return b
	}
	if !a.arraySet {
		a.array = true
	}
	b.schema.put(a)
	return b
}

// Validate appends validation rules.
func (b *Builder) Validate(rules ...Rule) *Builder {
	b.check()
	b.schema.rules = append(b.schema.rules, rules...)
	return b
}

// Permitted sets the entity-level admission predicate.
func (b *Builder) Permitted(fn func(e *Entity) bool) *Builder {
	b.check()
	b.schema.permitted = fn
	return b
}

// Perform sets the action run by Call once validation and authorization
// pass.
func (b *Builder) Perform(fn func(ctx context.Context, e *Entity) error) *Builder {
	b.check()
	b.schema.perform = fn
	return b
}

// AssignWith sets a hook run after attribute assignment at construction.
// It may derive values with Entity.Set.
func (b *Builder) AssignWith(fn func(e *Entity) error) *Builder {
	b.check()
	b.schema.assign = fn
	return b
}

func (s *Schema) put(a *Attribute) {
	if _, ok := s.fields[a.name]; !ok {
		s.order = append(s.order, a.name)
	}
	s.fields[a.name] = a
}

// derive copies the schema into an unsealed subtype named name.
func (s *Schema) derive(name string) *Schema {
	d := newSchema(name)
	d.parent = s
	d.order = slices.Clone(s.order)
	for k, a := range s.fields {
		d.fields[k] = a.clone()
	}
	for k, n := range s.nested {
		d.nested[k] = n
	}
	d.rules = slices.Clone(s.rules)
	d.permitted = s.permitted
	d.perform = s.perform
	d.assign = s.assign
	return d
}

// seal marks s and every nested type it owns as immutable and returns all
// of them for registration.
func (s *Schema) seal() []*Schema {
	if s.sealed {
		return nil
	}
	s.sealed = true
	out := []*Schema{s}
	names := make([]string, 0, len(s.nested))
	for k := range s.nested {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		out = append(out, s.nested[k].seal()...)
	}
	return out
}

// Registry is a name to schema table. Schemas are added once and never
// replaced.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by Define.
func DefaultRegistry() *Registry { return defaultRegistry }

// Define builds a schema named name and registers it.
func (r *Registry) Define(name string, fn func(b *Builder)) (*Schema, error) {
	return r.build(newSchema(name), fn)
}

// Extend builds a subtype of parent named name. The parent's fields, rules,
// policy and actions are copied first; fn overlays them.
func (r *Registry) Extend(parent *Schema, name string, fn func(b *Builder)) (*Schema, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: nil parent", ErrInvalidName)
	}
	return r.build(parent.derive(name), fn)
}

func (r *Registry) build(s *Schema, fn func(b *Builder)) (*Schema, error) {
	if strings.TrimSpace(s.name) == "" {
		return nil, ErrInvalidName
	}
	if _, ok := r.Lookup(s.name); ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaExists, s.name)
	}
	b := &Builder{reg: r, schema: s}
	if fn != nil {
		fn(b)
	}
	if b.err != nil {
		return nil, b.err
	}
	all := s.seal()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range all {
		if _, ok := r.schemas[x.name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrSchemaExists, x.name)
		}
	}
	for _, x := range all {
		r.schemas[x.name] = x
	}
	return s, nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns the registered schema names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Define builds and registers a schema in the default registry.
func Define(name string, fn func(b *Builder)) (*Schema, error) {
	return defaultRegistry.Define(name, fn)
}

// MustDefine is like Define but panics on error. It is meant for
// package-level schema variables.
func MustDefine(name string, fn func(b *Builder)) *Schema {
	s, err := Define(name, fn)
	if err != nil {
		panic(err)
	}
	return s
}

// Extend builds and registers a subtype in the default registry.
func Extend(parent *Schema, name string, fn func(b *Builder)) (*Schema, error) {
	return defaultRegistry.Extend(parent, name, fn)
}

// Lookup returns a schema from the default registry.
func Lookup(name string) (*Schema, bool) {
	return defaultRegistry.Lookup(name)
}

// camelize turns shipping_address into ShippingAddress.
func camelize(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' || r == ' ' {
			upper = true
			continue
		}
		if upper {
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
