package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const pageSchema = `
package site

class: Page: {
	db: {
		Title: "Varchar(100)"
		Sort:  "Int"
	}
	has_one: Parent: "Page"
	has_many: Children: "Page"
	many_many: Tags: {class: "Tag", extra: Weight: "Int"}
	defaults: Title: "Untitled"
}

class: RedirectorPage: {
	extends: "Page"
	db: {
		RedirectionType: "Enum(Internal, External)"
		ExternalURL:     "Varchar(255)"
	}
}

class: ErrorPage: {
	extends: "Page"
	db: Code: "Int"
	defaults: Code: 404
}

class: Tag: {
	db: Name: "Varchar(50)"
	belongs_many_many: Pages: "Page"
}
`

// writeSchema writes src as the only CUE file in dir.
func writeSchema(t *testing.T, dir, src string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.cue"), []byte(src), 0644))
}

// runCLI executes the root command with defaults in place of a project file.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// migratedSite returns a schema directory and a database with its tables.
func migratedSite(t *testing.T) (schemaDir, db string) {
	t.Helper()
	dir := t.TempDir()
	schemaDir = filepath.Join(dir, "schema")
	db = filepath.Join(dir, "site.db")
	writeSchema(t, schemaDir, pageSchema)

	_, err := runCLI(t, "migrate", "--db", db, schemaDir)
	require.NoError(t, err)
	return schemaDir, db
}
