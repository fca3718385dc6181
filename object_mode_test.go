package ldtable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type musician struct {
	First string
	Last  string
	Born  int
}

func TestObjectModeIndexObjectsAutoDiscovers(t *testing.T) {
	tbl, err := New(WithObjectMode(), WithIndexObjects())
	require.NoError(t, err)

	_, err = tbl.Add(&musician{First: "John", Last: "Lennon", Born: 1940})
	require.NoError(t, err)
	_, err = tbl.Add(&musician{First: "Paul", Last: "McCartney", Born: 1942})
	require.NoError(t, err)

	n, err := tbl.Count(Eq("First", "John"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObjectModeWithoutIndexObjectsRequiresKnownAttributes(t *testing.T) {
	tbl, err := New(WithObjectMode(), WithAttributes("First", "Last"))
	require.NoError(t, err)

	_, err = tbl.Add(&musician{First: "George", Last: "Harrison", Born: 1943})
	require.NoError(t, err)

	n, err := tbl.Count(Eq("First", "George"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObjectModeMissingKnownAttributeFails(t *testing.T) {
	type partial struct{ First string }
	tbl, err := New(WithObjectMode(), WithAttributes("First", "Last"))
	require.NoError(t, err)

	_, err = tbl.Add(&partial{First: "no-last-field"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAttribute))
}

// Object mode's "add of a record lacking an already-known attribute fails"
// rule is unconditional: it still fails even when a table-wide default is
// configured, unlike mapping mode.
func TestObjectModeMissingKnownAttributeFailsEvenWithDefault(t *testing.T) {
	type partial struct{ First string }
	tbl, err := New(WithObjectMode(), WithAttributes("First", "Last"), WithDefaultAttribute("anon"))
	require.NoError(t, err)

	_, err = tbl.Add(&partial{First: "no-last-field"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAttribute))
}

func TestObjectModeUpdateCopiesMatchingFields(t *testing.T) {
	tbl, err := New(WithObjectMode(), WithIndexObjects(),
		WithInitialRecords(&musician{First: "George", Last: "Martin", Born: 1926}))
	require.NoError(t, err)

	n, err := tbl.Update(M{"Born": 1927}, Eq("Last", "Martin"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, ok, err := tbl.QueryOne(Eq("Born", 1927))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Martin", rec.(*musician).Last)
}

func TestObjectModeUpdateWithObjectChangesRejectsUnknownField(t *testing.T) {
	type change struct{ Nickname string }
	tbl, err := New(WithObjectMode(), WithIndexObjects(),
		WithInitialRecords(&musician{First: "George", Last: "Martin", Born: 1926}))
	require.NoError(t, err)

	_, err = tbl.Update(&change{Nickname: "Sir George"}, Eq("Last", "Martin"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAttribute))
}
