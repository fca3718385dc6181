// Package ldtable implements an in-memory, schemaless table of records with
// near-constant-time equality lookups on any indexed attribute, composable
// boolean query expressions, and mutation operations that keep an inverted
// index coherent as records are added, updated, removed, and reindexed.
//
// It behaves like a tiny database with no SQL engine and no disk layer: the
// embedding program supplies records, either as map[string]any values
// (mapping mode, the default) or as opaque struct pointers (object mode),
// and consumes query results built from a small expression tree of Eq, Cmp,
// And, Or, Not, Filter, and IndexIs nodes.
//
// A Table is not safe for concurrent mutation. Concurrent read-only access
// from multiple goroutines is safe as long as no mutation runs at the same
// time; the caller is responsible for enforcing that.
package ldtable
