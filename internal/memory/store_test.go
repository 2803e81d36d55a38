package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

var defs = []types.TableDef{
	{
		Name:         "posts",
		Columns:      []types.Column{{Name: "title", Type: "string"}},
		Associations: []types.AssociationDef{{Name: "replies", Table: "replies", ForeignKey: "post_id"}},
	},
	{Name: "replies", Columns: []types.Column{{Name: "body", Type: "string"}}},
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Attach(types.Config{Backend: types.BackendMemory}))
	require.NoError(t, s.Define(defs...))
	return s
}

func TestStore_Lifecycle(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Attach(types.Config{}), types.ErrBackendEmpty)
	require.NoError(t, s.Attach(types.Config{Backend: types.BackendMemory}))
	assert.ErrorIs(t, s.Attach(types.Config{Backend: types.BackendMemory}), types.ErrAlreadyAttached)
	require.NoError(t, s.Define(defs...))
	assert.Equal(t, []string{"posts", "replies"}, s.Tables())

	_, err := s.Relation("nope")
	assert.ErrorIs(t, err, types.ErrTableNotFound)

	require.NoError(t, s.Detach())
	require.NoError(t, s.Detach())
	_, err = s.Relation("posts")
	assert.ErrorIs(t, err, types.ErrDetached)
}

func TestStore_Define(t *testing.T) {
	s := New()
	err := s.Define(types.TableDef{Name: "bad", Columns: []types.Column{{Name: "id"}}})
	assert.ErrorIs(t, err, types.ErrInvalidTable)
}

func TestRelation_CreateFindAssign(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	posts, err := s.Relation("posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, posts.Fields())

	_, err = posts.Create(ctx, map[string]any{"nope": 1})
	assert.ErrorIs(t, err, types.ErrUnknownColumn)

	p, err := posts.Create(ctx, map[string]any{"title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID())

	found, err := posts.FindByIDs(ctx, []any{"1", 42})
	require.NoError(t, err)
	require.Len(t, found, 1)
	rec := found["1"]
	assert.Equal(t, "hello", rec.Attributes()["title"])
	assert.Equal(t, 1, s.Lookups("posts"))

	require.NoError(t, rec.Assign(map[string]any{"title": "hello"}))
	assert.False(t, rec.HasChanges())
	require.NoError(t, rec.Assign(map[string]any{"title": "bye"}))
	assert.True(t, rec.HasChanges())
	assert.ErrorIs(t, rec.Assign(map[string]any{"x": 1}), types.ErrUnknownColumn)
	require.NoError(t, rec.Save(ctx))
	assert.False(t, rec.HasChanges())

	all, err := posts.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bye", all[0].Attributes()["title"])
}

func TestRelation_ChildScopeAndCascade(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	posts, err := s.Relation("posts")
	require.NoError(t, err)
	p1, err := posts.Create(ctx, map[string]any{"title": "one"})
	require.NoError(t, err)
	p2, err := posts.Create(ctx, map[string]any{"title": "two"})
	require.NoError(t, err)

	r1, err := p1.Child("replies")
	require.NoError(t, err)
	assert.Equal(t, []string{"body"}, r1.Fields())
	a, err := r1.Create(ctx, map[string]any{"body": "a"})
	require.NoError(t, err)
	assert.Equal(t, p1.ID(), a.Attributes()["post_id"])

	r2, err := p2.Child("replies")
	require.NoError(t, err)
	_, err = r2.Create(ctx, map[string]any{"body": "b"})
	require.NoError(t, err)

	found, err := r2.FindByIDs(ctx, []any{a.ID()})
	require.NoError(t, err)
	assert.Empty(t, found, "lookups are scoped to the parent")

	_, err = p1.Child("authors")
	assert.ErrorIs(t, err, types.ErrUnknownAssociation)

	require.NoError(t, p1.Delete(ctx))
	assert.Equal(t, 1, s.Count("replies"))
	assert.ErrorIs(t, p1.Save(ctx), types.ErrRecordDeleted)
	assert.ErrorIs(t, p1.Delete(ctx), types.ErrNotFound)
}

func TestRelation_AllIsCachedUntilReload(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	posts, err := s.Relation("posts")
	require.NoError(t, err)
	_, err = posts.Create(ctx, map[string]any{"title": "one"})
	require.NoError(t, err)

	all, err := posts.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	other, err := s.Relation("posts")
	require.NoError(t, err)
	_, err = other.Create(ctx, map[string]any{"title": "two"})
	require.NoError(t, err)

	all, err = posts.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "stale until reload")

	require.NoError(t, posts.Reload(ctx))
	all, err = posts.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, s.Reloads("posts"))
}
