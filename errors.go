package ldtable

import "errors"

// Sentinel errors returned by Table operations. Callers discriminate with
// errors.Is. Errors about a record's own shape (a mapping-mode record that is
// not a string-keyed map, an object-mode record that is not a struct or not
// addressable, a value whose type does not fit the field or map it is
// written to) wrap none of these.
var (
	// ErrUnknownAttribute is returned when a query or update references an
	// attribute that is not indexed and cannot be auto-added.
	ErrUnknownAttribute = errors.New("ldtable: unknown attribute")

	// ErrExcludedAttribute is returned when a mutation or reindex touches an
	// explicitly excluded attribute.
	ErrExcludedAttribute = errors.New("ldtable: excluded attribute")

	// ErrMissingAttribute is returned when a back-fill needs a value that
	// neither the record nor a configured default can supply.
	ErrMissingAttribute = errors.New("ldtable: missing attribute")

	// ErrBadQuery is returned when a query input is neither a mapping, a
	// Node, nor (in object mode with indexed objects) a record.
	ErrBadQuery = errors.New("ldtable: bad query")

	// ErrNoMatch is returned by Remove/Update when the query resolves to
	// zero live slots.
	ErrNoMatch = errors.New("ldtable: no match")

	// ErrDeleted is returned by Get when the requested slot is tombstoned.
	ErrDeleted = errors.New("ldtable: slot deleted")

	// ErrOutOfRange is returned by Get when the requested slot was never
	// assigned.
	ErrOutOfRange = errors.New("ldtable: slot out of range")

	// ErrStaleHandle is returned when a query built from a Handle is used
	// after the table's schema epoch has advanced past the handle's.
	ErrStaleHandle = errors.New("ldtable: stale query handle")

	// ErrUnhashable is returned when a value offered for indexing cannot be
	// normalized to hashable keys.
	ErrUnhashable = errors.New("ldtable: unhashable value")
)
