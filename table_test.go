package ldtable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beatles() []any {
	return []any{
		M{"first": "John", "last": "Lennon", "born": 1940, "role": "guitar"},
		M{"first": "Paul", "last": "McCartney", "born": 1942, "role": "bass"},
		M{"first": "George", "last": "Harrison", "born": 1943, "role": "guitar"},
		M{"first": "Ringo", "last": "Starr", "born": 1940, "role": "drums"},
		M{"first": "George", "last": "Martin", "born": 1926, "role": "producer"},
	}
}

func newBeatlesTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(WithInitialRecords(beatles()...))
	require.NoError(t, err)
	return tbl
}

// Scenario 1: plain equality and comparison counts over the Beatles roster.
func TestScenarioCounts(t *testing.T) {
	tbl := newBeatlesTable(t)

	n, err := tbl.Count(M{"role": "guitar"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tbl.Count(Cmp("born", OpLE, 1940))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = tbl.Count(And(Eq("first", "George"), Cmp("born", OpLT, 1940)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, ok, err := tbl.QueryOne(And(Eq("first", "George"), Cmp("born", OpLT, 1940)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Martin", rec.(M)["last"])
}

// Scenario 2: sequence-valued attribute expansion and multi-key Eq
// intersection semantics ("contains all these elements").
func TestScenarioSequenceAttribute(t *testing.T) {
	tbl, err := New(WithInitialRecords(
		M{"role": []string{"guitar", "strings"}},
		M{"role": []string{"bass", "strings"}},
		M{"role": []string{"guitar", "strings"}},
		M{"role": "drums"},
	))
	require.NoError(t, err)

	n, err := tbl.Count(Eq("role", "strings"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = tbl.Count(Eq("role", []string{"strings", "bass"}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Scenario 3: removal renumbers nothing; _index stays stable; a tombstoned
// slot vanishes from iteration and from _index queries.
func TestScenarioRemoval(t *testing.T) {
	tbl := newBeatlesTable(t)

	n, err := tbl.Remove(M{"first": "Paul"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, tbl.Len())

	_, ok, err := tbl.QueryOne(M{"_index": 1})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, ok, err := tbl.QueryOne(M{"_index": 0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "John", rec.(M)["first"])

	_, err = tbl.Get(1)
	assert.True(t, errors.Is(err, ErrDeleted))
}

// Scenario 4: in-place host mutation of a record without reindexing leaves
// the index stale for the changed attribute, while the record itself (and
// queries on its other attributes) reflect the new value immediately.
func TestScenarioStaleIndexAfterInPlaceMutation(t *testing.T) {
	tbl := newBeatlesTable(t)

	rec, ok, err := tbl.QueryOne(M{"born": 1926})
	require.NoError(t, err)
	require.True(t, ok)
	rec.(M)["born"] = 1927 // host mutates directly, bypassing Table.Update

	_, ok, err = tbl.QueryOne(M{"born": 1926})
	require.NoError(t, err)
	assert.True(t, ok, "index should still report the pre-mutation key until reindex")

	rec, ok, err = tbl.QueryOne(M{"last": "Martin"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1927, rec.(M)["born"], "the record itself reflects the mutation immediately")

	require.NoError(t, tbl.Reindex("born"))
	_, ok, err = tbl.QueryOne(M{"born": 1926})
	require.NoError(t, err)
	assert.False(t, ok, "reindex repairs the stale posting")
}

// Table.Update, by contrast, keeps the index coherent for the attributes it
// touches: the old key stops matching immediately.
func TestUpdateKeepsIndexCoherent(t *testing.T) {
	tbl := newBeatlesTable(t)

	n, err := tbl.Update(M{"born": 1927}, M{"born": 1926})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := tbl.QueryOne(M{"born": 1926})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, ok, err := tbl.QueryOne(M{"born": 1927})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Martin", rec.(M)["last"])
}

// Scenario 5: add_attribute back-fills missing slots from a default.
func TestScenarioAddAttributeDefault(t *testing.T) {
	tbl := newBeatlesTable(t)
	_, err := tbl.Update(M{"extra": "test"}, M{"first": "John"})
	require.Error(t, err) // "extra" isn't known yet: UnknownAttribute
	assert.True(t, errors.Is(err, ErrUnknownAttribute))

	require.NoError(t, tbl.AddAttribute("extra", "added"))

	n, err := tbl.Count(M{"extra": "added"})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestAddAttributeBackfillWithPriorValue(t *testing.T) {
	tbl, err := New(WithInitialRecords(
		M{"first": "John"},
		M{"first": "Paul"},
		M{"first": "George"},
		M{"first": "Ringo"},
		M{"first": "George", "extra": "test"},
	))
	require.NoError(t, err)

	require.NoError(t, tbl.AddAttribute("extra", "added"))

	n, err := tbl.Count(M{"extra": "test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tbl.Count(M{"extra": "added"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// Heterogeneous records added sequentially with no default_attribute
// configured still get the new attribute indexed: prior slots that lack it
// back-fill with nil rather than the whole Add failing.
func TestAddDiscoveryBackfillsNilWithoutDefault(t *testing.T) {
	tbl, err := New()
	require.NoError(t, err)

	_, err = tbl.Add(M{"a": 1, "b": 2})
	require.NoError(t, err)
	_, err = tbl.Add(M{"a": 2, "b": 4})
	require.NoError(t, err)
	_, err = tbl.Add(M{"a": 4, "b": 8, "c": 16})
	require.NoError(t, err)

	n, err := tbl.Count(M{"c": nil})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tbl.Count(M{"c": 16})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Reindex validates every named attribute's back-fill before installing any
// of them: a failure on a later attribute must not leave an earlier one in
// the batch half-reindexed.
func TestReindexValidatesAllAttributesBeforeInstallingAny(t *testing.T) {
	tbl, err := New(WithInitialRecords(
		M{"a": 1, "b": 10},
		M{"a": 2, "b": 20},
	))
	require.NoError(t, err)

	rec, ok, err := tbl.QueryOne(M{"a": 2})
	require.NoError(t, err)
	require.True(t, ok)
	delete(rec.(M), "b")
	rec.(M)["a"] = 99 // host mutates "a" directly, bypassing Table.Update

	err = tbl.Reindex("a", "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAttribute))

	n, err := tbl.Count(M{"a": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a's posting list must be untouched by the failed reindex")

	n, err = tbl.Count(M{"a": 99})
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Scenario 6: excluded attributes reject every form of access, and a
// rejected update leaves the table untouched.
func TestScenarioExcludedAttribute(t *testing.T) {
	tbl, err := New(
		WithInitialRecords(M{"i": 1}, M{"i": 2}),
		WithExcludedAttributes("i**2"),
	)
	require.NoError(t, err)

	_, _, err = tbl.QueryOne(M{"i**2": 4})
	assert.True(t, errors.Is(err, ErrUnknownAttribute))

	err = tbl.AddAttribute("i**2")
	assert.True(t, errors.Is(err, ErrExcludedAttribute))

	before := tbl.Len()
	_, err = tbl.Update(M{"i**2": 21.1}, M{"i": 1})
	assert.True(t, errors.Is(err, ErrExcludedAttribute))
	assert.Equal(t, before, tbl.Len())
}

func TestBoundaryEmptyTable(t *testing.T) {
	tbl, err := New(WithAttributes("role"))
	require.NoError(t, err)

	n, err := tbl.Count(M{"role": "guitar"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = tbl.Remove(M{"role": "guitar"})
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestEmptySequenceAttributeIsQueryable(t *testing.T) {
	tbl, err := New(WithInitialRecords(
		M{"tags": []string{}},
		M{"tags": []string{"a"}},
	))
	require.NoError(t, err)

	n, err := tbl.Count(Eq("tags", EMPTY))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBadQueryOnBareScalar(t *testing.T) {
	tbl := newBeatlesTable(t)
	_, err := tbl.Contains(42)
	assert.True(t, errors.Is(err, ErrBadQuery))
}

func TestCountIdentity(t *testing.T) {
	tbl := newBeatlesTable(t)
	q := Cmp("born", OpLE, 1942)

	n, err := tbl.Count(q)
	require.NoError(t, err)

	qr, err := tbl.Query(q)
	require.NoError(t, err)
	assert.Equal(t, n, qr.Len())
}

func TestDeMorgan(t *testing.T) {
	tbl := newBeatlesTable(t)
	x := Eq("role", "guitar")
	y := Cmp("born", OpLT, 1942)

	left, err := tbl.Query(Not(And(x, y)))
	require.NoError(t, err)
	right, err := tbl.Query(Or(Not(x), Not(y)))
	require.NoError(t, err)
	assert.Equal(t, left.IDs(), right.IDs())
}

func TestRoundTripEquality(t *testing.T) {
	tbl := newBeatlesTable(t)
	ids, err := tbl.Add(M{"first": "Billy", "last": "Preston", "born": 1946, "role": "keys"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	rec, ok, err := tbl.QueryOne(M{"first": "Billy", "last": "Preston", "born": 1946, "role": "keys"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Preston", rec.(M)["last"])
}

func TestItemsAscendingOrder(t *testing.T) {
	tbl := newBeatlesTable(t)
	var ids []int
	for id := range tbl.Items() {
		ids = append(ids, int(id))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ids)
}
