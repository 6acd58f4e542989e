package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore opens a store in a temp dir with a three table hierarchy.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.EnsureTables(context.Background(), []TableDef{
		{Name: "Root", AutoIncrement: true, Columns: []ColumnDef{
			{Name: "ClassName", Type: "VARCHAR(255)"},
			{Name: "Created", Type: "TEXT"},
			{Name: "LastEdited", Type: "TEXT"},
		}, Indexes: [][]string{{"ClassName"}}},
		{Name: "Middle", Columns: []ColumnDef{{Name: "X", Type: "INTEGER NOT NULL DEFAULT 0"}}},
		{Name: "Leaf", Columns: []ColumnDef{{Name: "Y", Type: "VARCHAR(255)"}}},
		{Name: "Root_Tags", AutoIncrement: true, Columns: []ColumnDef{
			{Name: "RootID", Type: "INTEGER NOT NULL DEFAULT 0"},
			{Name: "TagID", Type: "INTEGER NOT NULL DEFAULT 0"},
			{Name: "Weight", Type: "INTEGER NOT NULL DEFAULT 0"},
		}},
	}))
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestEnsureTables_Idempotent(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.EnsureTables(context.Background(), []TableDef{{Name: "Middle"}}))
}

func TestTableDef_CreateSQL(t *testing.T) {
	def := TableDef{
		Name:          "Page",
		AutoIncrement: true,
		Columns:       []ColumnDef{{Name: "Title", Type: "VARCHAR(255)"}},
		Indexes:       [][]string{{"Title"}},
	}
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "Page" ("ID" INTEGER PRIMARY KEY AUTOINCREMENT, "Title" VARCHAR(255))`,
		`CREATE INDEX IF NOT EXISTS "idx_Page_Title" ON "Page" ("Title")`,
	}, def.CreateSQL())
}

func TestManipulate_InsertSharesGeneratedIdentity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Manipulate(ctx, []TableWrite{
		{Table: "Root", Command: Insert, Fields: map[string]any{"ClassName": "Leaf", "Created": "2024-01-01 00:00:00"}},
		{Table: "Root", Command: Update, Fields: map[string]any{"LastEdited": "2024-01-01 00:00:00"}},
		{Table: "Middle", Command: Insert, Fields: map[string]any{"X": int64(7)}},
		{Table: "Leaf", Command: Insert, Fields: map[string]any{"Y": "leaf"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	rows, err := s.Query(ctx, `SELECT "Root"."ID", "ClassName", "LastEdited", "X", "Y" FROM "Root" `+
		`LEFT JOIN "Middle" ON "Middle"."ID" = "Root"."ID" LEFT JOIN "Leaf" ON "Leaf"."ID" = "Root"."ID"`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{
		"ID":         int64(1),
		"ClassName":  "Leaf",
		"LastEdited": "2024-01-01 00:00:00",
		"X":          int64(7),
		"Y":          "leaf",
	}, rows[0])

	second, err := s.Manipulate(ctx, []TableWrite{
		{Table: "Root", Command: Insert, Fields: map[string]any{"ClassName": "Root"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)
}

func TestManipulate_UpdateFallsBackToInsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Manipulate(ctx, []TableWrite{
		{Table: "Root", Command: Insert, Fields: map[string]any{"ClassName": "Middle"}},
	})
	require.NoError(t, err)

	_, err = s.Manipulate(ctx, []TableWrite{
		{Table: "Middle", Command: Update, ID: id, Fields: map[string]any{"X": int64(3)}},
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT "X" FROM "Middle" WHERE "ID" = ?`, id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["X"])
}

func TestManipulate_UpdateWithoutFieldsEnsuresRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Manipulate(ctx, []TableWrite{{Table: "Leaf", Command: Update, ID: 5}})
	require.NoError(t, err)
	_, err = s.Manipulate(ctx, []TableWrite{{Table: "Leaf", Command: Update, ID: 5}})
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT "ID" FROM "Leaf"`)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestManipulate_Delete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Manipulate(ctx, []TableWrite{
		{Table: "Root", Command: Insert, Fields: map[string]any{"ClassName": "Middle"}},
		{Table: "Middle", Command: Insert, Fields: map[string]any{"X": int64(1)}},
	})
	require.NoError(t, err)

	_, err = s.Manipulate(ctx, []TableWrite{
		{Table: "Middle", Command: Delete, ID: id},
		{Table: "Root", Command: Delete, ID: id},
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT "ID" FROM "Root"`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestManipulate_JunctionUpsertAndDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := map[string]any{"RootID": int64(1), "TagID": int64(2)}

	_, err := s.Manipulate(ctx, []TableWrite{
		{Table: "Root_Tags", Command: Insert, Where: key, Fields: map[string]any{"Weight": int64(1)}},
		{Table: "Root_Tags", Command: Insert, Where: key, Fields: map[string]any{"Weight": int64(5)}},
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT "RootID", "TagID", "Weight" FROM "Root_Tags"`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0]["Weight"])

	_, err = s.Manipulate(ctx, []TableWrite{{Table: "Root_Tags", Command: Delete, Where: key}})
	require.NoError(t, err)

	rows, err = s.Query(ctx, `SELECT "ID" FROM "Root_Tags"`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestManipulate_FailureRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Manipulate(ctx, []TableWrite{
		{Table: "Root", Command: Insert, Fields: map[string]any{"ClassName": "Leaf"}},
		{Table: "Missing", Command: Insert, Fields: map[string]any{"A": 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write 1: insert Missing")

	rows, err := s.Query(ctx, `SELECT "ID" FROM "Root"`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestManipulate_Empty(t *testing.T) {
	s := createTestStore(t)
	id, err := s.Manipulate(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, id)
}
