package ldtable

// slotSet is a posting list: the set of slot ids indexed under a single
// (attribute, value-key). A plain map gives O(1) insert/remove/membership
// and cheap size checks for And's smaller-operand-first heuristic.
type slotSet map[SlotID]struct{}

func newSlotSet() slotSet { return make(slotSet) }

func (s slotSet) add(id SlotID)      { s[id] = struct{}{} }
func (s slotSet) remove(id SlotID)   { delete(s, id) }
func (s slotSet) has(id SlotID) bool { _, ok := s[id]; return ok }

func (s slotSet) clone() slotSet {
	out := make(slotSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func intersect(a, b slotSet) slotSet {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(slotSet, len(a))
	for id := range a {
		if b.has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

func union(a, b slotSet) slotSet {
	out := make(slotSet, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

func minus(universe, a slotSet) slotSet {
	out := make(slotSet, len(universe))
	for id := range universe {
		if !a.has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// invertedIndex is the two-level mapping attribute -> value-key -> posting
// list. It is a derived view of the record store; the table is responsible
// for keeping it coherent across add/remove/update/reindex.
type invertedIndex struct {
	posting map[string]map[any]slotSet
}

func newInvertedIndex() *invertedIndex {
	return &invertedIndex{posting: make(map[string]map[any]slotSet)}
}

// ensureAttribute registers attr with an empty posting table if it is not
// already known, without posting anything.
func (idx *invertedIndex) ensureAttribute(attr string) {
	if _, ok := idx.posting[attr]; !ok {
		idx.posting[attr] = make(map[any]slotSet)
	}
}

func (idx *invertedIndex) hasAttribute(attr string) bool {
	_, ok := idx.posting[attr]
	return ok
}

func (idx *invertedIndex) knownAttributes() []string {
	out := make([]string, 0, len(idx.posting))
	for a := range idx.posting {
		out = append(out, a)
	}
	return out
}

// post adds slot under every key in keys for attr, creating posting entries
// as needed.
func (idx *invertedIndex) post(attr string, id SlotID, keys []any) {
	idx.ensureAttribute(attr)
	table := idx.posting[attr]
	for _, k := range keys {
		set, ok := table[k]
		if !ok {
			set = newSlotSet()
			table[k] = set
		}
		set.add(id)
	}
}

// unpost removes slot from every key in keys for attr, pruning the posting
// entry once it empties out — except the EMPTY sentinel, which is kept
// alive as an empty set so the attribute remains queryable for "no values".
func (idx *invertedIndex) unpost(attr string, id SlotID, keys []any) {
	table, ok := idx.posting[attr]
	if !ok {
		return
	}
	for _, k := range keys {
		set, ok := table[k]
		if !ok {
			continue
		}
		set.remove(id)
		if len(set) == 0 {
			if _, isEmpty := k.(emptySeqKey); !isEmpty {
				delete(table, k)
			}
		}
	}
}

// clearAttribute drops every posting entry for attr, leaving it registered
// with no postings (used by rebuild/reindex before reposting).
func (idx *invertedIndex) clearAttribute(attr string) {
	idx.posting[attr] = make(map[any]slotSet)
}

func (idx *invertedIndex) dropAttribute(attr string) {
	delete(idx.posting, attr)
}

// lookupEq returns the posting set for a single normalized key of attr. A
// multi-key lookup (sequence-valued query) is the caller's responsibility:
// it intersects the sets returned by repeated single-key lookups.
func (idx *invertedIndex) lookupEq(attr string, key any) (slotSet, bool) {
	table, ok := idx.posting[attr]
	if !ok {
		return nil, false
	}
	if set, ok := table[key]; ok {
		return set, true
	}
	// The exact Go type didn't hit; fall back to a numeric-aware scan so a
	// query value like int64(1940) still finds postings stored under other
	// numeric types. A table can hold the same logical value under more than
	// one concrete type (e.g. int and int32 both posted for the same
	// attribute), so this unions every matching key's set rather than
	// stopping at the first.
	var out slotSet
	for k, set := range table {
		if keysEqual(k, key) {
			if out == nil {
				out = set.clone()
			} else {
				out = union(out, set)
			}
		}
	}
	if out == nil {
		return newSlotSet(), true
	}
	return out, true
}

// lookupCmp unions the posting lists of every key in attr's domain that
// satisfies op against value under orderedCompare. Incomparable keys are
// skipped, not errored.
func (idx *invertedIndex) lookupCmp(attr string, op CmpOp, value any) (slotSet, bool) {
	table, ok := idx.posting[attr]
	if !ok {
		return nil, false
	}
	out := newSlotSet()
	for k, set := range table {
		order, comparable := orderedCompare(k, value)
		if !comparable {
			continue
		}
		match := false
		switch op {
		case OpLT:
			match = order < 0
		case OpLE:
			match = order <= 0
		case OpGT:
			match = order > 0
		case OpGE:
			match = order >= 0
		}
		if match {
			for id := range set {
				out.add(id)
			}
		}
	}
	return out, true
}
