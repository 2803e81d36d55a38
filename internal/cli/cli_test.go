// Tests for the bindery command-line interface, run in process.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/bindery/pkg/bind"
	"github.com/mesh-intelligence/bindery/pkg/reconcile"
	"github.com/mesh-intelligence/bindery/pkg/types"
)

const testSchema = `types:
  - name: UserForm
    table: users
    permit_scopes: [admin, user]
    fields:
      - {name: id, type: integer}
      - {name: first_name, type: string, required: true}
      - name: country
        type: string
        default: de
        permitted_values:
          admin: [de, fr]
          "*": [de]
      - name: comments
        table: comments
        fields:
          - {name: id, type: integer}
          - {name: text, type: string, required: true}
          - {name: _destroy, type: boolean}
`

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	t       *testing.T
	tempDir string
	config  string
	dataDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{"BINDERY_BACKEND", "BINDERY_LOG_LEVEL", "BINDERY_TIME_ZONE", "BINDERY_SCHEMA_FILE", "BINDERY_DATA_DIR", "BINDERY_SYNC_ALLOW_LIST"} {
		t.Setenv(key, "")
	}
	tempDir := t.TempDir()
	env := &testEnv{
		t:       t,
		tempDir: tempDir,
		config:  filepath.Join(tempDir, "config"),
		dataDir: filepath.Join(tempDir, "data"),
	}
	require.NoError(t, os.MkdirAll(env.config, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.config, "schema.yaml"), []byte(testSchema), 0o644))
	return env
}

func (e *testEnv) writeInput(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.tempDir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the CLI with the env's directories and returns stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config-dir", e.config, "--data-dir", e.dataDir}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "bindery %v:\n%s", args, out)
	return out
}

func TestVersion(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "bindery v"+Version)
}

func TestInitWritesDefaultConfig(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("init")

	assert.Contains(t, out, "bindery initialized successfully")
	assert.Contains(t, out, "[comments users]")
	_, err := os.Stat(filepath.Join(env.config, "config.yaml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.dataDir, "bindery.db"))
	assert.NoError(t, err)
}

func TestInitMissingSchema(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.config, "schema.yaml")))
	_, err := env.run("init")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestSyncCreateUpdateDelete(t *testing.T) {
	env := newTestEnv(t)

	create := env.writeInput("create.json", `{"first_name": "Max", "comments": [{"text": "a"}, {"text": "b"}]}`)
	out := env.mustRun("sync", "UserForm", create, "--scope", "admin")
	assert.Equal(t, "created 3, updated 0, deleted 0, unchanged 0\n", out)

	var users []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("list", "users")), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Max", users[0]["first_name"])
	assert.Equal(t, "de", users[0]["country"], "default applied to the absent field")

	update := env.writeInput("update.json", `{"id": 1, "first_name": "Maximilian",
		"comments": [{"id": 1, "text": "a", "_destroy": true}, {"id": 2, "text": "b"}, {"text": "c"}]}`)
	out = env.mustRun("sync", "UserForm", update, "--scope", "admin", "--json")

	var res syncResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.RunID)
	require.NotNil(t, res.Report)
	assert.Equal(t, reconcile.Report{Created: 1, Updated: 1, Deleted: 1, Unchanged: 1}, *res.Report)

	var comments []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("list", "comments")), &comments))
	require.Len(t, comments, 2)
	assert.Equal(t, "b", comments[0]["text"])
	assert.Equal(t, "c", comments[1]["text"])
}

func TestSyncValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	input := env.writeInput("bad.json", `{"comments": [{"text": ""}]}`)

	out, err := env.run("sync", "UserForm", input, "--scope", "user", "--json")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
	assert.ErrorIs(t, err, bind.ErrInvalid)

	var res syncResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	assert.Nil(t, res.Report)
	assert.Equal(t, []string{bind.ErrorBlank}, res.Errors.On("first_name"))
	assert.Equal(t, []string{bind.ErrorNestedValidationFailed}, res.Errors.On("comments"))
}

func TestSyncPermissionDenied(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		input string
		scope string
	}{
		{"value outside the scope's allow-list", `{"first_name": "Max", "country": "fr"}`, "user"},
		{"scope not admitted", `{"first_name": "Max"}`, "guest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run("sync", "UserForm", env.writeInput("in.json", tt.input), "--scope", tt.scope)
			require.Error(t, err)
			assert.ErrorIs(t, err, bind.ErrNotPermitted)
			assert.Equal(t, exitUserError, exitCode(err))
		})
	}
}

func TestSyncMissingRecord(t *testing.T) {
	env := newTestEnv(t)
	input := env.writeInput("missing.json", `{"id": 42, "first_name": "Max"}`)

	_, err := env.run("sync", "UserForm", input, "--scope", "admin")
	require.Error(t, err)
	var nf *reconcile.RecordNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "users", nf.Relation)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestSyncUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("sync", "Nope", env.writeInput("in.json", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "Nope"`)
}

func TestSyncAllowListFromConfig(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("BINDERY_SYNC_ALLOW_LIST", "text")

	create := env.writeInput("create.json", `{"first_name": "Max", "comments": [{"text": "a"}]}`)
	env.mustRun("sync", "UserForm", create, "--scope", "admin")

	var users []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("list", "users")), &users))
	require.Len(t, users, 1)
	assert.Nil(t, users[0]["first_name"], "fields outside the allow-list are not written")
}

func TestInspect(t *testing.T) {
	env := newTestEnv(t)

	var rows []bind.Inspection
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("inspect", "UserForm", "country", "--scope", "user", "--json")), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "country", rows[0].Field)
	assert.Equal(t, "de", rows[0].Default)
	assert.Equal(t, []any{"de"}, rows[0].PermittedValues)

	out := env.mustRun("inspect", "UserForm")
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "comments")

	_, err := env.run("inspect", "UserForm", "nope")
	assert.ErrorIs(t, err, bind.ErrUnknownField)
}

func TestListUnknownTable(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("list", "orders")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	create := env.writeInput("create.json", `{"first_name": "Max", "comments": [{"text": "a"}]}`)
	env.mustRun("sync", "UserForm", create, "--scope", "admin")

	dump := filepath.Join(env.tempDir, "dump")
	assert.Contains(t, env.mustRun("export", dump), "exported 2 tables")

	other := filepath.Join(env.tempDir, "other")
	out := env.mustRun("--data-dir", other, "import", dump)
	assert.Contains(t, out, "imported 2 rows")

	var users []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("--data-dir", other, "list", "users")), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Max", users[0]["first_name"])
}

func TestMemoryBackendRejectsExport(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("BINDERY_BACKEND", types.BackendMemory)
	_, err := env.run("export", filepath.Join(env.tempDir, "dump"))
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestBadLogLevel(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("--log-level", "loud", "init")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}
