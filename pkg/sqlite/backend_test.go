package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

func TestNewBackend(t *testing.T) {
	b := NewBackend(nil)
	require.NoError(t, b.Define(types.TableDef{
		Name:    "notes",
		Columns: []types.Column{{Name: "body", Type: "string"}},
	}))
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer b.Detach()

	rel, err := b.Relation("notes")
	require.NoError(t, err)
	rec, err := rel.Create(context.Background(), map[string]any{"body": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Attributes()["body"])
}
