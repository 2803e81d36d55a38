// Tests for loading schema files into schemas and tables.
package schemafile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/bindery/pkg/bind"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

func loadUsers(t *testing.T, opts ...BuildOption) *Catalog {
	t.Helper()
	cat, err := Load(filepath.Join("testdata", "users.yaml"), bind.NewRegistry(), opts...)
	require.NoError(t, err)
	return cat
}

func userSchema(t *testing.T, cat *Catalog, name string) *bind.Schema {
	t.Helper()
	s, ok := cat.Schema(name)
	require.True(t, ok, name)
	return s
}

func TestLoadBuildsTypes(t *testing.T) {
	cat := loadUsers(t)
	assert.Equal(t, []string{"UserForm", "AdminUserForm"}, cat.Names())

	s := userSchema(t, cat, "UserForm")
	assert.Equal(t, []string{"id", "first_name", "last_name", "country", "roles", "email", "comments"}, s.FieldNames())
	assert.Equal(t, []string{"first_name"}, s.RequiredFields())

	roles, ok := s.Field("roles")
	require.True(t, ok)
	assert.True(t, roles.IsArray())
	assert.Equal(t, "string", roles.TypeName())

	comments, ok := s.NestedSchema("comments")
	require.True(t, ok)
	assert.Equal(t, "UserForm.Comments", comments.Name())
	assert.Equal(t, []string{"text"}, comments.RequiredFields())

	_, ok = cat.Schema("UserForm.Comments")
	assert.False(t, ok, "nested types are not top-level names")
}

func TestLoadDerivesTables(t *testing.T) {
	cat := loadUsers(t)

	table, ok := cat.Table("UserForm")
	require.True(t, ok)
	assert.Equal(t, "users", table)
	table, ok = cat.Table("AdminUserForm")
	require.True(t, ok)
	assert.Equal(t, "users", table, "subtypes inherit the table")

	want := []types.TableDef{
		{
			Name: "users",
			Columns: []types.Column{
				{Name: "first_name", Type: "string"},
				{Name: "last_name", Type: "string"},
				{Name: "country", Type: "symbol"},
				{Name: "roles", Type: "any"},
				{Name: "email", Type: "string"},
			},
			Associations: []types.AssociationDef{{Name: "comments", Table: "comments", ForeignKey: "user_id"}},
		},
		{
			Name:         "comments",
			Columns:      []types.Column{{Name: "text", Type: "string"}},
			Associations: []types.AssociationDef{{Name: "tags", Table: "tags", ForeignKey: "comment_id"}},
		},
		{
			Name:    "tags",
			Columns: []types.Column{{Name: "label", Type: "string"}},
		},
		{
			Name:    "audit",
			Columns: []types.Column{{Name: "message", Type: "string"}},
		},
	}
	assert.Equal(t, want, cat.Tables())
}

func TestScopedPermissions(t *testing.T) {
	s := userSchema(t, loadUsers(t), "UserForm")

	tests := []struct {
		name      string
		scope     string
		params    map[string]any
		permitted bool
		wantErr   bool
	}{
		{"admin may set roles", "admin", map[string]any{"first_name": "Max", "roles": []any{"ops"}}, true, false},
		{"user may not set roles", "user", map[string]any{"first_name": "Max", "roles": []any{"ops"}}, true, true},
		{"user restricted to de", "user", map[string]any{"first_name": "Max", "country": "fr"}, true, true},
		{"admin may pick fr", "admin", map[string]any{"first_name": "Max", "country": "fr"}, true, false},
		{"guest is not admitted", "guest", map[string]any{"first_name": "Max"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := s.New(tt.params, bind.WithScope(tt.scope))
			if tt.wantErr {
				assert.ErrorIs(t, err, bind.ErrNotPermitted)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.permitted, e.Permitted())
		})
	}
}

func TestDefaultsAndRules(t *testing.T) {
	s := userSchema(t, loadUsers(t), "UserForm")

	e, err := s.New(map[string]any{"first_name": "M", "email": "nope"}, bind.WithScope("user"))
	require.NoError(t, err)
	assert.Equal(t, bind.Symbol("de"), e.Get("country"))

	assert.False(t, e.Valid())
	assert.Equal(t, []string{bind.ErrorTooShort}, e.Errors().On("first_name"))
	assert.Equal(t, []string{bind.ErrorInvalid}, e.Errors().On("email"))
}

func TestExtendedTypeOverlaysField(t *testing.T) {
	s := userSchema(t, loadUsers(t), "AdminUserForm")
	e, err := s.New(map[string]any{"first_name": "Max", "country": "us"}, bind.WithScope("admin"))
	require.NoError(t, err)
	assert.False(t, e.Valid())
	assert.Equal(t, []string{bind.ErrorInclusion}, e.Errors().On("country"))
}

func TestWithPerformAttachesAction(t *testing.T) {
	var calls []string
	cat := loadUsers(t, WithPerform(func(typeName, table string) func(context.Context, *bind.Entity) error {
		return func(_ context.Context, e *bind.Entity) error {
			calls = append(calls, typeName+"->"+table)
			return nil
		}
	}))
	s := userSchema(t, cat, "UserForm")
	assert.True(t, s.HasPerform())

	e, err := s.New(map[string]any{"first_name": "Max"}, bind.WithScope("user"))
	require.NoError(t, err)
	ok, err := e.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"UserForm->users"}, calls)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown type", "types:\n  - name: A\n    fields:\n      - {name: x, type: money}\n", bind.ErrUnknownType},
		{"unknown parent", "types:\n  - name: A\n    extends: B\n", ErrInvalidDecl},
		{"bad format", "types:\n  - name: A\n    fields:\n      - {name: x, format: \"(\"}\n", ErrInvalidDecl},
		{"unnamed field", "types:\n  - name: A\n    fields:\n      - {type: string}\n", ErrInvalidDecl},
		{"bad table", "tables:\n  - name: \"\"\n", types.ErrInvalidTable},
		{"duplicate type", "types:\n  - name: A\n  - name: A\n", bind.ErrSchemaExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = Build(f, bind.NewRegistry())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Parse([]byte("types: [\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("types:\n  - name: A\n    fields:\n      - {name: x, permitted_values: 3}\n"))
	assert.Error(t, err)
}

func TestValueList(t *testing.T) {
	f, err := Parse([]byte("types:\n  - name: A\n    fields:\n      - {name: x, permitted_values: [1, 2]}\n      - name: y\n        permitted_values: {admin: [a]}\n"))
	require.NoError(t, err)
	x := f.Types[0].Fields[0].PermittedValues
	y := f.Types[0].Fields[1].PermittedValues

	vals, restricted := x.Values("anyone")
	assert.True(t, restricted)
	assert.Equal(t, []any{1, 2}, vals)

	vals, restricted = y.Values("admin")
	assert.True(t, restricted)
	assert.Equal(t, []any{"a"}, vals)
	vals, _ = y.Values("user")
	assert.Empty(t, vals, "scopes without an entry get nothing")

	_, restricted = ValueList{}.Values("admin")
	assert.False(t, restricted)

	out, err := Marshal(f)
	require.NoError(t, err)
	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, f.Types[0].Fields[1].PermittedValues, back.Types[0].Fields[1].PermittedValues)
}
