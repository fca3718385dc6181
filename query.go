package ldtable

import "fmt"

// Node is a predicate in the query algebra. Evaluating a node against a
// table yields the set of live slots it selects. Nodes never own records;
// they reference the table only through the non-owning handle passed to
// eval.
type Node interface {
	eval(t *Table) (slotSet, error)
}

// Eq builds a node matching records whose attr normalizes to value. A
// sequence-valued value degrades to "contains all these elements": the
// intersection of each element's posting list. Never goes stale.
func Eq(attr string, value any) Node {
	return eqNode{attr: attr, value: value}
}

// Cmp builds an inequality node: attr op value, for op in {<,<=,>,>=,!=}.
// Keys incomparable to value are skipped, not erroring. Never goes stale.
func Cmp(attr string, op CmpOp, value any) Node {
	return cmpNode{attr: attr, op: op, value: value}
}

// And combines nodes by intersection. And() with zero nodes matches every
// live slot.
func And(nodes ...Node) Node {
	return andNode{nodes: nodes}
}

// Or combines nodes by union. Or() with zero nodes matches nothing.
func Or(nodes ...Node) Node {
	return orNode{nodes: nodes}
}

// Not complements a node relative to the live-slot universe.
func Not(n Node) Node {
	return notNode{inner: n}
}

// Filter builds an O(N) scan node: a live slot matches if fn(record) is
// true. Use sparingly; it bypasses the index entirely.
func Filter(fn func(record any) bool) Node {
	return filterNode{fn: fn}
}

// IndexIs builds a node matching the singleton {i} if slot i is live, the
// empty set otherwise. Backs the always-queryable "_index" pseudo-attribute.
func IndexIs(i SlotID) Node {
	return indexIsNode{id: i}
}

type eqNode struct {
	attr  string
	value any
}

func (n eqNode) eval(t *Table) (slotSet, error) {
	if n.attr == indexPseudoAttr {
		i, ok := n.value.(SlotID)
		if !ok {
			i = SlotID(toInt(n.value))
		}
		return indexIsNode{id: i}.eval(t)
	}
	if !t.idx.hasAttribute(n.attr) {
		return nil, fmt.Errorf("ldtable: attribute %q: %w", n.attr, ErrUnknownAttribute)
	}
	keys, err := normalize(n.value)
	if err != nil {
		return nil, err
	}
	result, _ := t.idx.lookupEq(n.attr, keys[0])
	for _, k := range keys[1:] {
		set, _ := t.idx.lookupEq(n.attr, k)
		result = intersect(result, set)
	}
	return intersect(result, t.liveSet()), nil
}

func toInt(v any) int {
	f, _ := asFloat(v)
	return int(f)
}

type cmpNode struct {
	attr  string
	op    CmpOp
	value any
}

func (n cmpNode) eval(t *Table) (slotSet, error) {
	if !t.idx.hasAttribute(n.attr) {
		return nil, fmt.Errorf("ldtable: attribute %q: %w", n.attr, ErrUnknownAttribute)
	}
	if n.op == OpNE {
		eqSet, err := (eqNode{attr: n.attr, value: n.value}).eval(t)
		if err != nil {
			return nil, err
		}
		return minus(t.liveSet(), eqSet), nil
	}
	set, _ := t.idx.lookupCmp(n.attr, n.op, n.value)
	return intersect(set, t.liveSet()), nil
}

type andNode struct{ nodes []Node }

func (n andNode) eval(t *Table) (slotSet, error) {
	if len(n.nodes) == 0 {
		return t.liveSet(), nil
	}
	sets := make([]slotSet, len(n.nodes))
	for i, sub := range n.nodes {
		s, err := sub.eval(t)
		if err != nil {
			return nil, err
		}
		sets[i] = s
	}
	// Intersect the smaller operands first: sort ascending by cardinality so
	// each successive intersection only shrinks the running result.
	for i := 1; i < len(sets); i++ {
		for j := i; j > 0 && len(sets[j]) < len(sets[j-1]); j-- {
			sets[j], sets[j-1] = sets[j-1], sets[j]
		}
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = intersect(result, s)
	}
	return result, nil
}

type orNode struct{ nodes []Node }

func (n orNode) eval(t *Table) (slotSet, error) {
	result := newSlotSet()
	for _, sub := range n.nodes {
		s, err := sub.eval(t)
		if err != nil {
			return nil, err
		}
		result = union(result, s)
	}
	return result, nil
}

type notNode struct{ inner Node }

func (n notNode) eval(t *Table) (slotSet, error) {
	s, err := n.inner.eval(t)
	if err != nil {
		return nil, err
	}
	return minus(t.liveSet(), s), nil
}

type filterNode struct{ fn func(record any) bool }

func (n filterNode) eval(t *Table) (slotSet, error) {
	out := newSlotSet()
	t.store.iterLive(func(id SlotID, record any) bool {
		if n.fn(record) {
			out.add(id)
		}
		return true
	})
	return out, nil
}

type indexIsNode struct{ id SlotID }

func (n indexIsNode) eval(t *Table) (slotSet, error) {
	out := newSlotSet()
	if t.store.isLive(n.id) {
		out.add(n.id)
	}
	return out, nil
}

// incompleteNode is the value of a bare attribute proxy with no comparison
// applied: it matches nothing, per the documented Incomplete semantics.
type incompleteNode struct{}

func (incompleteNode) eval(t *Table) (slotSet, error) {
	return newSlotSet(), nil
}
