package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWritesSubclassRecord(t *testing.T) {
	schemaDir, db := migratedSite(t)

	out, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "ErrorPage", "Title=Gone", "Sort=2")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Created ErrorPage #1")
	assert.Contains(t, out, "  Title: Gone")
	assert.Contains(t, out, "  Sort: 2")
	assert.Contains(t, out, "  Code: 404")
}

func TestCreateJSON(t *testing.T) {
	schemaDir, db := migratedSite(t)

	out, err := runCLI(t, "--format", "json", "create", "--db", db, "--schema", schemaDir,
		"RedirectorPage", "RedirectionType=External", "ExternalURL=https://example.org")
	require.NoError(t, err)

	var resp struct {
		Status  string       `json:"status"`
		Data    CreateResult `json:"data"`
		ScopeID string       `json:"scope_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.ScopeID, 36)
	assert.Equal(t, "RedirectorPage", resp.Data.Class)
	assert.Equal(t, int64(1), resp.Data.ID)
	assert.Equal(t, "Untitled", resp.Data.Values["Title"])
	assert.Equal(t, "External", resp.Data.Values["RedirectionType"])
	assert.Equal(t, "https://example.org", resp.Data.Values["ExternalURL"])
}

func TestCreateAssignsSequentialIDsAcrossSubclasses(t *testing.T) {
	schemaDir, db := migratedSite(t)

	_, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "Page", "Title=Home")
	require.NoError(t, err)
	out, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "ErrorPage", "Title=Missing")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Created ErrorPage #2")
}

func TestCreateForeignKey(t *testing.T) {
	schemaDir, db := migratedSite(t)

	_, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "Page", "Title=Home")
	require.NoError(t, err)
	out, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "Page", "Title=About", "ParentID=1")
	require.NoError(t, err)
	assert.Contains(t, out, "  ParentID: 1")
}

func TestCreateUnknownClass(t *testing.T) {
	schemaDir, db := migratedSite(t)

	_, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "Nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown class "Nope"`)
}

func TestCreateRootClassRejected(t *testing.T) {
	schemaDir, db := migratedSite(t)

	_, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "DataObject")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown class")
}

func TestCreateUnknownField(t *testing.T) {
	schemaDir, db := migratedSite(t)

	_, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "Page", "Code=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "Page has no field Code")
}

func TestCreateBadValue(t *testing.T) {
	schemaDir, db := migratedSite(t)

	_, err := runCLI(t, "create", "--db", db, "--schema", schemaDir, "Page", "Sort=many")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Page.Sort")
}

func TestCreateBadAssignment(t *testing.T) {
	_, err := runCLI(t, "create", "Page", "Title")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid assignment "Title"`)
}

func TestCreateWithoutTables(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, pageSchema)

	_, err := runCLI(t, "create", "--db", filepath.Join(dir, "empty.db"), "--schema", dir, "Page", "Title=Home")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"Title=A=B", "Sort=", "Code=404"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Title": "A=B", "Sort": "", "Code": "404"}, values)

	_, err = parseAssignments([]string{"=x"})
	require.Error(t, err)
}
