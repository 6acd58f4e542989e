package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/schema"
)

func hierarchyClasses() []schema.ClassDescriptor {
	return []schema.ClassDescriptor{
		{Name: "Root", DB: map[string]string{"A": "Int", "B": "Varchar"}},
		{Name: "Middle", Extends: "Root", DB: map[string]string{"X": "Int"}},
		{Name: "Leaf", Extends: "Middle", DB: map[string]string{"Y": "Varchar"}},
		{Name: "Sibling", Extends: "Root", DB: map[string]string{"Z": "Int"}},
	}
}

func blogClasses() []schema.ClassDescriptor {
	return []schema.ClassDescriptor{
		{
			Name:    "Author",
			DB:      map[string]string{"Name": "Varchar"},
			HasMany: map[string]schema.HasManyDecl{"Posts": {Class: "Post"}},
		},
		{
			Name:     "Post",
			DB:       map[string]string{"Title": "Varchar"},
			HasOne:   map[string]string{"Author": "Author"},
			ManyMany: map[string]schema.ManyManyDecl{"Tags": {Class: "Tag", Extra: map[string]string{"Weight": "Int"}}},
		},
		{
			Name:            "Tag",
			DB:              map[string]string{"Label": "Varchar"},
			BelongsManyMany: map[string]schema.BelongsManyManyDecl{"Posts": {Class: "Post"}},
		},
	}
}

func TestRun_MultiTableWrites(t *testing.T) {
	scenario := &Scenario{
		Name:        "multi_table",
		Description: "Leaf records span three tables",
		Classes:     hierarchyClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "leaf", Class: "Leaf", Values: map[string]any{"A": 1, "X": 2, "Y": "y"}, Persist: true},
			{Op: OpPersist, Ref: "leaf"},
			{Op: OpPersist, Ref: "leaf", Force: true},
			{Op: OpSet, Ref: "leaf", Values: map[string]any{"Y": "z"}, Persist: true},
		},
		Assertions: []Assertion{
			{Type: AssertWrites, Step: 0, Writes: []string{"insert Root", "update Root", "insert Middle", "insert Leaf"}},
			{Type: AssertWrites, Step: 1},
			{Type: AssertWrites, Step: 2, Writes: []string{"update Root"}},
			{Type: AssertWrites, Step: 3, Writes: []string{"update Root", "update Leaf"}},
			{Type: AssertCount, Class: "Root", Count: 1},
			{Type: AssertCount, Class: "Middle", Count: 1},
			{Type: AssertCount, Class: "Sibling", Count: 0},
			{Type: AssertCount, Class: "Root", Where: map[string]any{"ClassName": "Leaf"}, Count: 1},
			{Type: AssertField, Ref: "leaf", Field: "Y", Value: "z"},
			{Type: AssertField, Ref: "leaf", Field: "A", Value: 1},
			{Type: AssertFinalState, Table: "Root", Where: map[string]any{"ID": 1}, Expect: map[string]any{
				"ClassName":  "Leaf",
				"Created":    "2024-01-01 00:00:00",
				"LastEdited": "2024-01-01 00:00:02",
			}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 4)
	for i, ev := range result.Trace {
		assert.Equal(t, i, ev.Step)
		assert.Equal(t, "leaf", ev.Ref)
		assert.Equal(t, "Leaf", ev.Class)
		assert.Equal(t, int64(1), ev.ID)
	}
	assert.Nil(t, result.Trace[1].Writes)
}

func TestRun_Relations(t *testing.T) {
	scenario := &Scenario{
		Name:        "relations",
		Description: "has_many and many_many links",
		Classes:     blogClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "ann", Class: "Author", Values: map[string]any{"Name": "Ann"}},
			{Op: OpCreate, Ref: "post", Class: "Post", Values: map[string]any{"Title": "Hello"}},
			{Op: OpAdd, Ref: "ann", Relation: "Posts", Target: "post"},
			{Op: OpPersist, Ref: "ann"},
			{Op: OpCreate, Ref: "go", Class: "Tag", Values: map[string]any{"Label": "go"}},
			{Op: OpAdd, Ref: "post", Relation: "Tags", Target: "go", Extra: map[string]any{"Weight": 5}},
			{Op: OpAdd, Ref: "post", Relation: "Tags", Target: "go", Extra: map[string]any{"Weight": 7}},
			{Op: OpReload, Ref: "post"},
		},
		Assertions: []Assertion{
			{Type: AssertWrites, Step: 2},
			{Type: AssertWrites, Step: 3, Writes: []string{"insert Author", "update Author", "insert Post", "update Post"}},
			{Type: AssertWrites, Step: 5, Writes: []string{"insert Tag", "update Tag", "insert Post_Tags"}},
			{Type: AssertWrites, Step: 6, Writes: []string{"insert Post_Tags"}},
			{Type: AssertComponents, Ref: "ann", Relation: "Posts", Count: 1},
			{Type: AssertComponents, Ref: "post", Relation: "Tags", Count: 1},
			{Type: AssertComponents, Ref: "go", Relation: "Posts", Count: 1},
			{Type: AssertField, Ref: "post", Field: "AuthorID", Value: 1},
			{Type: AssertFinalState, Table: "Post_Tags", Where: map[string]any{"PostID": 1, "TagID": 1}, Expect: map[string]any{"Weight": 7}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "expected_error",
		Description: "Deleting an unsaved record fails",
		Classes:     hierarchyClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "r", Class: "Root"},
			{Op: OpDelete, Ref: "r", ExpectError: "never persisted"},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Class: "Root", Count: 0},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Contains(t, result.Trace[1].Error, "never persisted")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := &Scenario{
		Name:        "expected_error_missing",
		Description: "A step declared to fail succeeds",
		Classes:     hierarchyClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "r", Class: "Root", Persist: true, ExpectError: "boom"},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Class: "Root", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected error containing "boom", got none`)
}

func TestRun_UnexpectedErrorStopsRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_error",
		Description: "A failing step stops the run",
		Classes:     hierarchyClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "r", Class: "Root"},
			{Op: OpDelete, Ref: "r"},
			{Op: OpPersist, Ref: "r"},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Class: "Root", Count: 99},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (delete r)")
	assert.Len(t, result.Trace, 2)
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "failed_assertion",
		Description: "A wrong count fails the scenario",
		Classes:     hierarchyClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "r", Class: "Sibling", Values: map[string]any{"Z": 3}, Persist: true},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Class: "Sibling", Count: 2},
			{Type: AssertField, Ref: "r", Field: "Z", Value: 4},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: count")
	assert.Contains(t, result.Errors[1], "r.Z = 3")
}

func TestRun_DeleteAndReload(t *testing.T) {
	scenario := &Scenario{
		Name:        "delete",
		Description: "Deleting removes every table row",
		Classes:     hierarchyClasses(),
		Steps: []Step{
			{Op: OpCreate, Ref: "leaf", Class: "Leaf", Persist: true},
			{Op: OpCreate, Ref: "other", Class: "Leaf", Persist: true},
			{Op: OpDelete, Ref: "leaf"},
			{Op: OpReload, Ref: "other"},
		},
		Assertions: []Assertion{
			{Type: AssertWrites, Step: 2, Writes: []string{"delete Leaf", "delete Middle", "delete Root"}},
			{Type: AssertWrites, Step: 3},
			{Type: AssertCount, Class: "Leaf", Count: 1},
			{Type: AssertCount, Class: "Root", Where: map[string]any{"ID": 2}, Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(0), result.Trace[2].ID)
	assert.Equal(t, int64(2), result.Trace[3].ID)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:        "determinism",
		Description: "Test deterministic execution",
		Classes:     blogClasses(),
		ScopeID:     "fixed-scope",
		Steps: []Step{
			{Op: OpCreate, Ref: "a", Class: "Author", Values: map[string]any{"Name": "A"}, Persist: true},
			{Op: OpCreate, Ref: "b", Class: "Author", Values: map[string]any{"Name": "B"}, Persist: true},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Class: "Author", Count: 2},
		},
	}

	result1, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	result2, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.True(t, result1.Pass)
	assert.True(t, result2.Pass)
	assert.Equal(t, result1.Trace, result2.Trace)
	assert.Equal(t, int64(2), result1.Trace[1].ID)
}

func TestRun_RegisterFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_classes",
		Description: "Duplicate declarations are rejected",
		Classes: []schema.ClassDescriptor{
			{Name: "Thing", DB: map[string]string{"A": "Int"}},
			{Name: "Thing", DB: map[string]string{"B": "Int"}},
		},
		Steps:      []Step{{Op: OpCreate, Ref: "t", Class: "Thing"}},
		Assertions: []Assertion{{Type: AssertCount, Class: "Thing"}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register classes")
}
