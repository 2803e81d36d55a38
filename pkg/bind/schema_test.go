// Tests for schema definition, nested type synthesis and inheritance.
package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineRejectsUnknownType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Define("Broken", func(b *Builder) {
		b.Field("name", TypeName("nope"))
	})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, ok := reg.Lookup("Broken")
	assert.False(t, ok, "failed schemas are not registered")
}

func TestDefineRejectsDuplicatesAndNestedLists(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Define("Form", nil)
	require.NoError(t, err)

	_, err = reg.Define("Form", nil)
	assert.ErrorIs(t, err, ErrSchemaExists)

	_, err = reg.Define("Matrix", func(b *Builder) {
		b.Field("cells", ListOf(ListOf(TypeInteger)))
	})
	assert.ErrorIs(t, err, ErrNestedList)

	_, err = reg.Define("", nil)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestFieldOrderAndRedeclaration(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.Define("Ordered", func(b *Builder) {
		b.Field("a", TypeString)
		b.Field("b", TypeInteger)
		b.Field("a", TypeInteger)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, s.FieldNames())
	a, ok := s.Field("a")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, a.Type())
	assert.True(t, s.Declares("b"))
	assert.False(t, s.Declares("c"))
}

func TestNestedSynthesis(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.Define("NestedForm", func(b *Builder) {
		b.Nested("children", func(c *Builder) {
			c.Field("name", TypeString)
		})
		b.Nested("shipping_address", func(c *Builder) {
			c.Field("street", TypeString)
		}, Array(false))
		b.Nested("children", func(c *Builder) {
			c.Field("age", TypeInteger)
		})
	})
	require.NoError(t, err)

	children, ok := s.NestedSchema("children")
	require.True(t, ok)
	assert.Equal(t, "NestedForm.Children", children.Name())
	assert.Equal(t, []string{"name", "age"}, children.FieldNames(), "redeclaration extends the same type")

	attr, _ := s.Field("children")
	assert.True(t, attr.IsArray())

	addr, ok := s.NestedSchema("shipping_address")
	require.True(t, ok)
	assert.Equal(t, "NestedForm.ShippingAddress", addr.Name())
	attr, _ = s.Field("shipping_address")
	assert.False(t, attr.IsArray())

	got, ok := reg.Lookup("NestedForm.Children")
	require.True(t, ok)
	assert.Same(t, children, got)
}

func TestNestedDefaultsToEmptyList(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.Define("Parent", func(b *Builder) {
		b.Nested("children", func(c *Builder) {
			c.Field("name", TypeString)
		})
	})
	require.NoError(t, err)

	e, err := s.New(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{}, e.Get("children"))

	e, err = s.New(map[string]any{"children": []any{map[string]any{"name": "Kim"}}})
	require.NoError(t, err)
	kids := e.Children("children")
	require.Len(t, kids, 1)
	assert.Equal(t, "Kim", kids[0].Get("name"))
	assert.Equal(t, "Parent.Children", kids[0].Schema().Name())
}

func TestExtendOverlaysParent(t *testing.T) {
	reg := NewRegistry()
	base, err := reg.Define("Base", func(b *Builder) {
		b.Field("name", TypeString)
		b.Nested("items", func(c *Builder) {
			c.Field("label", TypeString)
		})
		b.Validate(Presence("name"))
	})
	require.NoError(t, err)

	sub, err := reg.Extend(base, "Sub", func(b *Builder) {
		b.Field("extra", TypeInteger)
		b.Nested("items", func(c *Builder) {
			c.Field("weight", TypeFloat)
		})
	})
	require.NoError(t, err)

	assert.Same(t, base, sub.Parent())
	assert.Equal(t, []string{"name", "items", "extra"}, sub.FieldNames())
	assert.Equal(t, []string{"name"}, sub.RequiredFields())

	subItems, _ := sub.NestedSchema("items")
	baseItems, _ := base.NestedSchema("items")
	assert.Equal(t, "Sub.Items", subItems.Name())
	assert.Equal(t, []string{"label", "weight"}, subItems.FieldNames())
	assert.Equal(t, []string{"label"}, baseItems.FieldNames(), "parent nested type is unchanged")
	assert.Equal(t, []string{"name", "items"}, base.FieldNames())
}

func TestSealedBuilderPanics(t *testing.T) {
	reg := NewRegistry()
	var kept *Builder
	_, err := reg.Define("Leaky", func(b *Builder) { kept = b })
	require.NoError(t, err)
	assert.Panics(t, func() { kept.Field("late", TypeString) })
}

func TestCamelize(t *testing.T) {
	assert.Equal(t, "ShippingAddress", camelize("shipping_address"))
	assert.Equal(t, "Tags", camelize("tags"))
	assert.Equal(t, "ABc", camelize("a_bc"))
}

func TestInspect(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.Define("Inspected", func(b *Builder) {
		b.Field("role", TypeString,
			Default("guest"),
			Permit(func(e *Entity) bool { return e.Scope() == "admin" }),
			AllowValues("guest", "admin"))
		b.Field("tags", ListOf(TypeString))
		b.Validate(Presence("role"))
	})
	require.NoError(t, err)

	in, err := s.Inspect("role", "admin")
	require.NoError(t, err)
	assert.Equal(t, Inspection{
		Field:           "role",
		Type:            "string",
		Default:         "guest",
		Required:        true,
		Permitted:       true,
		PermittedValues: []any{"guest", "admin"},
	}, in)

	in, err = s.Inspect("role", "user")
	require.NoError(t, err)
	assert.False(t, in.Permitted)

	in, err = s.Inspect("tags", nil)
	require.NoError(t, err)
	assert.True(t, in.Array)

	_, err = s.Inspect("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.Len(t, s.InspectAll(nil), 2)
}
