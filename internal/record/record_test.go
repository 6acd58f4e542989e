package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/field"
)

func hydrated() *Record {
	return Hydrate("Page", map[string]any{
		"ID":        int64(4),
		"ClassName": "Page",
		"Title":     "Home",
		"Sort":      int64(0),
		"ParentID":  int64(2),
	})
}

func TestHydrate_NothingChanged(t *testing.T) {
	r := hydrated()
	assert.Empty(t, r.ChangedFields(Loose))
	assert.True(t, r.Exists())
	assert.Equal(t, int64(4), r.ID())
	assert.Equal(t, "Page", r.ClassName())
	assert.Equal(t, r.Values(), r.Original())
}

func TestNew(t *testing.T) {
	plain := New("Page", nil)
	assert.False(t, plain.Exists())
	assert.Equal(t, "Page", plain.Get("ClassName"))
	assert.Empty(t, plain.ChangedFields(Loose))

	withDefaults := New("Page", map[string]any{"ShowInMenus": true})
	assert.Equal(t, true, withDefaults.Get("ShowInMenus"))
	assert.ElementsMatch(t, []string{"ClassName", "ID", "ShowInMenus"}, withDefaults.ChangedFields(Strict))
}

func TestSet_Severity(t *testing.T) {
	r := hydrated()

	r.Set("Sort", "")
	assert.Equal(t, Loose, r.Severity("Sort"))
	assert.True(t, r.IsChanged("Sort", Loose))
	assert.False(t, r.IsChanged("Sort", Strict))
	assert.Empty(t, r.ChangedFields(Strict))
	assert.Equal(t, []string{"Sort"}, r.ChangedFields(Loose))

	r.Set("Sort", int64(3))
	assert.Equal(t, Strict, r.Severity("Sort"))

	// Never downgraded.
	r.Set("Sort", "3")
	assert.Equal(t, Strict, r.Severity("Sort"))
}

func TestSet_IdenticalIsNoOp(t *testing.T) {
	r := hydrated()
	r.Set("Title", "Home")
	assert.Empty(t, r.ChangedFields(Loose))

	r.Set("Missing", nil)
	assert.Empty(t, r.ChangedFields(Loose))
}

func TestSet_LooseCases(t *testing.T) {
	testCases := []struct {
		name string
		old  any
		new  any
		want Severity
	}{
		{"int to empty string", int64(0), "", Loose},
		{"int to numeric string", int64(5), "5", Loose},
		{"int to float", int64(5), 5.0, Loose},
		{"nil to false", nil, false, Loose},
		{"string to int", "12", int64(12), Loose},
		{"int to other int", int64(5), int64(6), Strict},
		{"string to other string", "a", "b", Strict},
		{"nil to value", nil, "x", Strict},
		{"true to 1", true, int64(1), Strict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Hydrate("Page", map[string]any{"ID": int64(1), "F": tc.old})
			r.Set("F", tc.new)
			assert.Equal(t, tc.want, r.Severity("F"))
		})
	}
}

func TestSet_TimeEquality(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Hydrate("Page", map[string]any{"ID": int64(1), "Created": ts})
	r.Set("Created", ts.In(time.FixedZone("X", 3600)))
	assert.Empty(t, r.ChangedFields(Loose))
}

func TestSet_ForeignKeyInvalidatesComponent(t *testing.T) {
	r := hydrated()
	r.Components().Put("Parent", "", "cached parent")
	r.Components().Put("Owner", "", "cached owner")

	r.Set("ParentID", int64(9))

	_, ok := r.Components().Get("Parent", "")
	assert.False(t, ok)
	_, ok = r.Components().Get("Owner", "")
	assert.True(t, ok)
}

func TestForceAllChanged(t *testing.T) {
	r := hydrated()
	r.ForceAllChanged()
	assert.ElementsMatch(t, []string{"ID", "ClassName", "Title", "Sort", "ParentID"}, r.ChangedFields(Strict))
}

func TestMarkWritten(t *testing.T) {
	r := New("Page", nil)
	price := field.NewMoney(1, "NZD")
	r.Set("Title", "About")
	r.Set("Price", price)
	price.SetAmount(2)

	r.MarkWritten(12)

	assert.Equal(t, int64(12), r.ID())
	assert.Empty(t, r.ChangedFields(Loose))
	assert.Equal(t, "About", r.Original()["Title"])
	assert.False(t, price.IsChanged())
}

func TestOriginal_CompositeMutationStaysLive(t *testing.T) {
	r := Hydrate("Product", map[string]any{
		"ID":        int64(3),
		"ClassName": "Product",
		"Price":     field.NewMoney(10, "NZD"),
	})

	price := r.Get("Price").(*field.Money)
	price.SetAmount(99)
	price.SetCurrency("AUD")

	orig := r.Original()["Price"].(*field.Money)
	assert.Equal(t, 10.0, orig.Amount())
	assert.Equal(t, "NZD", orig.Currency())
	assert.NotSame(t, price, orig)

	r.MarkWritten(3)
	price.SetAmount(5)
	orig = r.Original()["Price"].(*field.Money)
	assert.Equal(t, 99.0, orig.Amount())
	assert.Equal(t, "AUD", orig.Currency())

	r.Original()["Price"].(*field.Money).SetAmount(1)
	assert.Equal(t, 99.0, r.Original()["Price"].(*field.Money).Amount())
}

func TestDuplicate(t *testing.T) {
	r := hydrated()
	r.Set("Price", field.NewMoney(5, "NZD"))
	d := r.Duplicate()

	assert.False(t, d.Exists())
	assert.Equal(t, "Home", d.Get("Title"))
	assert.True(t, d.IsChanged("Title", Strict))
	assert.NotSame(t, r.Get("Price"), d.Get("Price"))
	assert.Nil(t, d.Get("Created"))
}

func TestDestroy(t *testing.T) {
	r := hydrated()
	r.Components().Put("Parent", "", "x")
	r.Destroy()

	assert.True(t, r.IsDestroyed())
	assert.False(t, r.Exists())
	assert.Equal(t, 0, r.Components().Len())
	assert.Panics(t, func() { r.Get("Title") })
	assert.Panics(t, func() { r.Set("Title", "x") })
}

func TestLooseEqual(t *testing.T) {
	assert.True(t, looseEqual("", nil))
	assert.True(t, looseEqual(int64(0), false))
	assert.True(t, looseEqual("1.50", 1.5))
	assert.False(t, looseEqual("abc", int64(0)))
	require.False(t, looseEqual("a", "b"))
}
