package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/query"
	"github.com/roach88/lineage/internal/record"
	"github.com/roach88/lineage/internal/testutil"
)

func TestPersist_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.engine.NewRecord("Root")
	require.NoError(t, err)
	rec.Set("A", int64(1))
	rec.Set("B", "x")

	id, err := f.engine.Persist(ctx, rec)
	require.NoError(t, err)
	require.Positive(t, id)
	assert.Equal(t, id, rec.ID())
	assert.Empty(t, rec.ChangedFields(record.Loose))
	assert.Equal(t, testutil.Epoch, rec.Get("Created"))

	loaded, err := f.engine.Scope().GetByID(ctx, "Root", id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(1), loaded.Get("A"))
	assert.Equal(t, "x", loaded.Get("B"))
	assert.Equal(t, "Root", loaded.Get("ClassName"))
	assert.Equal(t, testutil.Epoch, loaded.Get("Created"))
	assert.Equal(t, testutil.Epoch, loaded.Get("LastEdited"))
	assert.Empty(t, loaded.ChangedFields(record.Loose))
}

func TestPersist_SecondCallIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.create(t, "Root", map[string]any{"A": int64(1)})
	require.Len(t, f.exec.Batches(), 1)

	id, err := f.engine.Persist(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID(), id)
	assert.Len(t, f.exec.Batches(), 1, "unchanged record must not be written")

	_, err = f.engine.Persist(ctx, rec, WithForceWrite())
	require.NoError(t, err)
	batches := f.exec.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"update Root"}, tablesAndCommands(batches[1]))
	assert.Equal(t, rec.ID(), batches[1][0].ID)
}

func TestPersist_MultiTableInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	leaf := f.create(t, "Leaf", map[string]any{"X": int64(7), "Y": "y"})

	batches := f.exec.Batches()
	require.Len(t, batches, 1)
	batch := batches[0]
	assert.Equal(t, []string{"insert Root", "update Root", "insert Middle", "insert Leaf"}, tablesAndCommands(batch))
	assert.Equal(t, map[string]any{"ClassName": "Leaf", "Created": "2024-01-01 00:00:00"}, batch[0].Fields)
	for _, w := range batch {
		assert.Zero(t, w.ID, "every write shares the generated identity")
	}
	assert.Equal(t, map[string]any{"X": int64(7)}, batch[2].Fields)
	assert.Equal(t, map[string]any{"Y": "y"}, batch[3].Fields)

	middles, err := f.engine.Get(ctx, "Middle", query.Params{})
	require.NoError(t, err)
	require.Len(t, middles, 1)
	assert.Equal(t, leaf.ID(), middles[0].ID())
	assert.Equal(t, "Leaf", middles[0].ClassName())
	assert.Equal(t, "y", middles[0].Get("Y"))

	siblings, err := f.engine.Get(ctx, "Sibling", query.Params{})
	require.NoError(t, err)
	assert.Empty(t, siblings)
}

func TestPersist_UpdateWritesOnlyChangedTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	leaf := f.create(t, "Leaf", map[string]any{"X": int64(7), "Y": "y"})
	f.exec.Reset()

	leaf.Set("Y", "z")
	_, err := f.engine.Persist(ctx, leaf)
	require.NoError(t, err)

	batches := f.exec.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"update Root", "update Leaf"}, tablesAndCommands(batches[0]))
	assert.Equal(t, map[string]any{"Y": "z"}, batches[0][1].Fields)

	reloaded, err := f.engine.Scope().GetByID(ctx, "Leaf", leaf.ID())
	require.NoError(t, err)
	assert.Equal(t, "z", reloaded.Get("Y"))
	assert.Equal(t, int64(7), reloaded.Get("X"))
}

func TestPersist_LooseChangeIsWritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.create(t, "Root", map[string]any{"B": ""})
	loaded, err := f.engine.Scope().GetByID(ctx, "Root", rec.ID())
	require.NoError(t, err)

	loaded.Set("B", nil)
	assert.Equal(t, record.Loose, loaded.Severity("B"))
	assert.Empty(t, loaded.ChangedFields(record.Strict))

	f.exec.Reset()
	_, err = f.engine.Persist(ctx, loaded)
	require.NoError(t, err)
	batches := f.exec.Batches()
	require.Len(t, batches, 1)
	assert.Contains(t, batches[0][0].Fields, "B")
}

func TestPersist_Severity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.create(t, "Root", map[string]any{"A": int64(0)})
	loaded, err := f.engine.Scope().GetByID(ctx, "Root", rec.ID())
	require.NoError(t, err)

	loaded.Set("A", "")
	assert.Equal(t, record.Loose, loaded.Severity("A"))
	loaded.Set("B", "changed")
	assert.Equal(t, record.Strict, loaded.Severity("B"))

	assert.Equal(t, []string{"A", "B"}, loaded.ChangedFields(record.Loose))
	assert.Equal(t, []string{"B"}, loaded.ChangedFields(record.Strict))
}

func TestPersist_CompositeChangeTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.create(t, "Post", map[string]any{"Price": field.NewMoney(10, "NZD")})
	loaded, err := f.engine.Scope().GetByID(ctx, "Post", post.ID())
	require.NoError(t, err)
	price := loaded.Get("Price").(*field.Money)
	assert.Equal(t, "10.00 NZD", price.String())

	// Mutating the composite in place is picked up without Set.
	price.SetAmount(12.5)
	f.exec.Reset()
	_, err = f.engine.Persist(ctx, loaded)
	require.NoError(t, err)

	batches := f.exec.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, 12.5, batches[0][0].Fields["PriceAmount"])
	assert.Equal(t, "NZD", batches[0][0].Fields["PriceCurrency"])
	assert.False(t, price.IsChanged())

	again, err := f.engine.Scope().GetByID(ctx, "Post", post.ID())
	require.NoError(t, err)
	assert.Equal(t, "12.50 NZD", again.Get("Price").(*field.Money).String())
}

func TestPersist_ValidationAbortsBeforeIO(t *testing.T) {
	f := newFixture(t, WithValidator(ValidatorFunc(func(rec *record.Record) error {
		if rec.Get("B") == "" {
			return errors.New("B is required")
		}
		return nil
	})))
	ctx := context.Background()

	rec, err := f.engine.NewRecord("Root")
	require.NoError(t, err)
	rec.Set("B", "")

	_, err = f.engine.Persist(ctx, rec)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "B is required")
	assert.Empty(t, f.exec.Batches())
	assert.False(t, rec.Exists())

	rec.Set("B", "ok")
	_, err = f.engine.Persist(ctx, rec)
	require.NoError(t, err)
}

func TestPersist_EncodeErrorAbortsBeforeIO(t *testing.T) {
	f := newFixture(t)

	rec, err := f.engine.NewRecord("Root")
	require.NoError(t, err)
	rec.Set("A", "not a number")

	_, err = f.engine.Persist(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Root.A")
	assert.Empty(t, f.exec.Batches())
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	leaf := f.create(t, "Leaf", map[string]any{"Y": "gone"})
	id := leaf.ID()
	f.exec.Reset()

	require.NoError(t, f.engine.Delete(ctx, leaf))
	batches := f.exec.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"delete Leaf", "delete Middle", "delete Root"}, tablesAndCommands(batches[0]))
	for _, w := range batches[0] {
		assert.Equal(t, id, w.ID)
	}

	assert.True(t, leaf.IsDestroyed())
	assert.Zero(t, leaf.ID())

	got, err := f.engine.GetByID(ctx, "Leaf", id)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.engine.Persist(ctx, leaf)
	assert.ErrorIs(t, err, errors.ErrRecordDestroyed)
	assert.ErrorIs(t, f.engine.Delete(ctx, leaf), errors.ErrRecordDestroyed)
	assert.Panics(t, func() { leaf.Get("Y") })
}

func TestDelete_NeverPersisted(t *testing.T) {
	f := newFixture(t)

	rec, err := f.engine.NewRecord("Root")
	require.NoError(t, err)
	err = f.engine.Delete(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never persisted")
	assert.Empty(t, f.exec.Batches())
}

func TestPersist_StorageErrorPropagates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	rec, err := f.engine.NewRecord("Root")
	require.NoError(t, err)
	_, err = f.engine.Persist(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist Root#0")
	assert.False(t, rec.Exists())
	assert.Equal(t, []string{"insert Root", "update Root"}, tablesAndCommands(f.exec.Batches()[0]))
}
