package schemafile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/cast"

	"github.com/mesh-intelligence/bindery/pkg/bind"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

// ErrInvalidDecl reports a declaration that cannot be built.
var ErrInvalidDecl = errors.New("invalid schema declaration")

// PerformFunc returns the action of a type bound to table, or nil for none.
type PerformFunc func(typeName, table string) func(ctx context.Context, e *bind.Entity) error

// BuildOption configures Build.
type BuildOption func(c *builder)

// WithPerform attaches an action to every type that names a table.
func WithPerform(fn PerformFunc) BuildOption {
	return func(c *builder) { c.perform = fn }
}

// Catalog holds the schemas and tables built from one file.
type Catalog struct {
	registry *bind.Registry
	names    []string
	tableOf  map[string]string
	tables   []types.TableDef
}

// Schema returns the top-level type named name.
func (c *Catalog) Schema(name string) (*bind.Schema, bool) {
	if !slices.Contains(c.names, name) {
		return nil, false
	}
	return c.registry.Lookup(name)
}

// Names returns the top-level type names in declaration order.
func (c *Catalog) Names() []string { return slices.Clone(c.names) }

// Table returns the table a top-level type reconciles into.
func (c *Catalog) Table(typeName string) (string, bool) {
	t, ok := c.tableOf[typeName]
	return t, ok
}

// Tables returns every table definition, derived and declared.
func (c *Catalog) Tables() []types.TableDef { return slices.Clone(c.tables) }

type builder struct {
	perform PerformFunc
}

// Load reads path and builds it into reg.
func Load(path string, reg *bind.Registry, opts ...BuildOption) (*Catalog, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(f, reg, opts...)
}

// Build defines every type of f in reg, in file order, and derives the
// table definitions. A type may extend any type declared before it.
func Build(f *File, reg *bind.Registry, opts ...BuildOption) (*Catalog, error) {
	c := &builder{}
	for _, opt := range opts {
		opt(c)
	}
	cat := &Catalog{registry: reg, tableOf: make(map[string]string)}

	tables := newTableSet()
	for _, td := range f.Types {
		if td.Name == "" {
			return nil, fmt.Errorf("%w: type without name", ErrInvalidDecl)
		}
		fn, err := c.typeBody(td)
		if err != nil {
			return nil, err
		}
		var s *bind.Schema
		if td.Extends != "" {
			parent, ok := reg.Lookup(td.Extends)
			if !ok {
				return nil, fmt.Errorf("%w: %s extends unknown type %s", ErrInvalidDecl, td.Name, td.Extends)
			}
			s, err = reg.Extend(parent, td.Name, fn)
		} else {
			s, err = reg.Define(td.Name, fn)
		}
		if err != nil {
			return nil, err
		}
		cat.names = append(cat.names, s.Name())

		table := td.Table
		if table == "" && td.Extends != "" {
			table = cat.tableOf[td.Extends]
		}
		if table != "" {
			cat.tableOf[td.Name] = table
			deriveTable(tables, table, s)
			deriveNested(tables, table, s, td.Fields)
		}
	}

	for _, d := range f.Tables {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		tables.put(d)
	}
	cat.tables = tables.list()
	return cat, nil
}

// typeBody returns the builder function of a top-level type.
func (c *builder) typeBody(td TypeDecl) (func(b *bind.Builder), error) {
	body, err := fieldsBody(td.Name, td.Fields)
	if err != nil {
		return nil, err
	}
	var action func(ctx context.Context, e *bind.Entity) error
	if c.perform != nil && td.Table != "" {
		action = c.perform(td.Name, td.Table)
	}
	scopes := td.PermitScopes
	return func(b *bind.Builder) {
		body(b)
		if scopes != nil {
			b.Permitted(scopeIn(scopes))
		}
		if action != nil {
			b.Perform(action)
		}
	}, nil
}

// fieldsBody compiles field declarations into a builder function. Rule
// patterns are compiled here so a bad pattern fails before Define runs.
func fieldsBody(owner string, fields []FieldDecl) (func(b *bind.Builder), error) {
	var steps []func(b *bind.Builder)
	var required []string
	var rules []bind.Rule

	for _, fd := range fields {
		if fd.Name == "" {
			return nil, fmt.Errorf("%w: %s: field without name", ErrInvalidDecl, owner)
		}
		opts := fieldOptions(fd)

		if fd.IsNested() {
			nested, err := fieldsBody(owner+"."+fd.Name, fd.Fields)
			if err != nil {
				return nil, err
			}
			name := fd.Name
			steps = append(steps, func(b *bind.Builder) { b.Nested(name, nested, opts...) })
		} else {
			spec := typeSpec(fd.Type)
			if fd.Array != nil && *fd.Array {
				if _, isList := spec.(bind.List); !isList {
					spec = bind.ListOf(spec)
				}
			}
			name := fd.Name
			steps = append(steps, func(b *bind.Builder) { b.Field(name, spec, opts...) })
		}

		if fd.Required {
			required = append(required, fd.Name)
		}
		if len(fd.Inclusion) > 0 {
			rules = append(rules, bind.Inclusion(fd.Name, fd.Inclusion...))
		}
		if fd.Length != nil {
			rules = append(rules, bind.Length(fd.Name, fd.Length.Min, fd.Length.Max))
		}
		if fd.Format != "" {
			re, err := regexp.Compile(fd.Format)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: format: %v", ErrInvalidDecl, owner, fd.Name, err)
			}
			rules = append(rules, bind.Format(fd.Name, re))
		}
	}

	return func(b *bind.Builder) {
		for _, step := range steps {
			step(b)
		}
		if len(required) > 0 {
			b.Validate(bind.Presence(required...))
		}
		if len(rules) > 0 {
			b.Validate(rules...)
		}
	}, nil
}

func fieldOptions(fd FieldDecl) []bind.FieldOption {
	var opts []bind.FieldOption
	if fd.Default != nil {
		opts = append(opts, bind.Default(fd.Default))
	}
	if fd.Array != nil && fd.IsNested() {
		opts = append(opts, bind.Array(*fd.Array))
	}
	if fd.PermitScopes != nil {
		opts = append(opts, bind.Permit(scopeIn(fd.PermitScopes)))
	}
	if !fd.PermittedValues.IsZero() {
		values := fd.PermittedValues
		opts = append(opts, bind.PermittedValues(func(e *bind.Entity) []any {
			vals, _ := values.Values(scopeOf(e))
			return vals
		}))
	}
	return opts
}

// typeSpec maps a declared type to a bind type. "[T]" declares a list of T;
// an empty type is a string.
func typeSpec(name string) bind.TypeSpec {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		return bind.ListOf(typeSpec(name[1 : len(name)-1]))
	}
	if name == "" {
		return bind.TypeString
	}
	return bind.TypeName(name)
}

func scopeOf(e *bind.Entity) string {
	return cast.ToString(e.Scope())
}

func scopeIn(scopes []string) func(e *bind.Entity) bool {
	return func(e *bind.Entity) bool {
		return slices.Contains(scopes, scopeOf(e))
	}
}

// tableSet keeps table definitions in first-seen order.
type tableSet struct {
	order []string
	defs  map[string]types.TableDef
}

func newTableSet() *tableSet {
	return &tableSet{defs: make(map[string]types.TableDef)}
}

func (t *tableSet) put(d types.TableDef) {
	if _, ok := t.defs[d.Name]; !ok {
		t.order = append(t.order, d.Name)
	}
	t.defs[d.Name] = d
}

// merge adds columns and associations to an existing definition.
func (t *tableSet) merge(d types.TableDef) {
	cur, ok := t.defs[d.Name]
	if !ok {
		t.put(d)
		return
	}
	for _, c := range d.Columns {
		if !slices.ContainsFunc(cur.Columns, func(x types.Column) bool { return x.Name == c.Name }) {
			cur.Columns = append(cur.Columns, c)
		}
	}
	for _, a := range d.Associations {
		if _, exists := cur.Association(a.Name); !exists {
			cur.Associations = append(cur.Associations, a)
		}
	}
	t.defs[d.Name] = cur
}

func (t *tableSet) list() []types.TableDef {
	out := make([]types.TableDef, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.defs[name])
	}
	return out
}

// deriveTable adds the table of schema s and, recursively, the tables of
// its nested fields that name one. Nested fields without a table are not
// persisted.
func deriveTable(set *tableSet, table string, s *bind.Schema) {
	def := types.TableDef{Name: table}
	for _, a := range s.Fields() {
		name := a.Name()
		if name == bind.FieldID || name == bind.FieldDestroy {
			continue
		}
		if _, nested := a.Nested(); nested {
			continue
		}
		typ := a.TypeName()
		if a.IsArray() {
			typ = string(bind.TypeAny)
		}
		def.Columns = append(def.Columns, types.Column{Name: name, Type: typ})
	}
	set.merge(def)
}

// deriveNested walks fd alongside s and records the association tables.
func deriveNested(set *tableSet, table string, s *bind.Schema, fields []FieldDecl) {
	for _, fd := range fields {
		if !fd.IsNested() || fd.Table == "" {
			continue
		}
		child, ok := s.NestedSchema(fd.Name)
		if !ok {
			continue
		}
		fk := fd.ForeignKey
		if fk == "" {
			fk = singular(table) + "_id"
		}
		set.merge(types.TableDef{
			Name:         table,
			Associations: []types.AssociationDef{{Name: fd.Name, Table: fd.Table, ForeignKey: fk}},
		})
		deriveTable(set, fd.Table, child)
		deriveNested(set, fd.Table, child, fd.Fields)
	}
}

func singular(table string) string {
	switch {
	case strings.HasSuffix(table, "ies"):
		return strings.TrimSuffix(table, "ies") + "y"
	case strings.HasSuffix(table, "s"):
		return strings.TrimSuffix(table, "s")
	}
	return table
}
